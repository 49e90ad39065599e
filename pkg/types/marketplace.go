package types

import (
	"sync"
	"time"
)

// Marketplace is the two-letter country code of an Amazon or Walmart market.
type Marketplace string

const (
	MarketplaceUS Marketplace = "US"
	MarketplaceUK Marketplace = "UK"
	MarketplaceCA Marketplace = "CA"
	MarketplaceAU Marketplace = "AU"
	MarketplaceDE Marketplace = "DE"
	MarketplaceFR Marketplace = "FR"
	MarketplaceES Marketplace = "ES"
	MarketplaceIT Marketplace = "IT"
	MarketplaceIN Marketplace = "IN"
	MarketplaceMX Marketplace = "MX"
	MarketplaceBR Marketplace = "BR"
	MarketplaceNL Marketplace = "NL"
	MarketplacePL Marketplace = "PL"
	MarketplaceTR Marketplace = "TR"
	MarketplaceAE Marketplace = "AE"
	MarketplaceSA Marketplace = "SA"
	MarketplaceSG Marketplace = "SG"
	MarketplaceEG Marketplace = "EG"
)

// marketplaceIDs maps Amazon marketplace IDs to country codes.
var marketplaceIDs = map[string]Marketplace{
	"ATVPDKIKX0DER":  MarketplaceUS,
	"A1F83G8C2ARO7P": MarketplaceUK,
	"A2EUQ1WTGCTBG2": MarketplaceCA,
	"A39IBJ37TRP1C6": MarketplaceAU,
	"A1PA6795UKMFR9": MarketplaceDE,
	"A13V1IB3VIYZZH": MarketplaceFR,
	"A1RKKUPIHCS9HS": MarketplaceES,
	"APJ6JRA9NG5V4":  MarketplaceIT,
	"A21TJRUUN4KGV":  MarketplaceIN,
	"A1AM78C64UM0Y8": MarketplaceMX,
	"A2Q3Y263D00KWC": MarketplaceBR,
	"A1805IZSGTT6HS": MarketplaceNL,
	"A1C3SOZRARQ6R3": MarketplacePL,
	"A33AVAJ2PDY3EV": MarketplaceTR,
	"A2VIGQ35RCS4UG": MarketplaceAE,
	"A17E79C6D8DWNP": MarketplaceSA,
	"A19VAU5U5O7RUS": MarketplaceSG,
	"ARBP9OOSHTCHU":  MarketplaceEG,
}

// MarketplaceFromID resolves an Amazon marketplace ID to a country code.
// The mapping is total: unknown IDs default to US.
func MarketplaceFromID(id string) Marketplace {
	if m, ok := marketplaceIDs[id]; ok {
		return m
	}
	return MarketplaceUS
}

// marketplaceZones maps markets to the timezone used for reset windows.
// Markets absent from the map are treated as UTC.
var marketplaceZones = map[Marketplace]string{
	MarketplaceUS: "America/New_York",
	MarketplaceCA: "America/Toronto",
	MarketplaceMX: "America/Mexico_City",
	MarketplaceBR: "America/Sao_Paulo",
	MarketplaceUK: "Europe/London",
	MarketplaceDE: "Europe/Berlin",
	MarketplaceFR: "Europe/Paris",
	MarketplaceES: "Europe/Madrid",
	MarketplaceIT: "Europe/Rome",
	MarketplaceNL: "Europe/Amsterdam",
	MarketplacePL: "Europe/Warsaw",
	MarketplaceIN: "Asia/Kolkata",
	MarketplaceSG: "Asia/Singapore",
	MarketplaceAU: "Australia/Sydney",
}

var (
	zoneMu    sync.Mutex
	zoneCache = map[Marketplace]*time.Location{}
)

// Location returns the wall-clock timezone for a marketplace. Unmapped
// markets, and markets whose zone is missing from the host tzdata, resolve
// to UTC.
func (m Marketplace) Location() *time.Location {
	zoneMu.Lock()
	defer zoneMu.Unlock()

	if loc, ok := zoneCache[m]; ok {
		return loc
	}
	loc := time.UTC
	if name, ok := marketplaceZones[m]; ok {
		if l, err := time.LoadLocation(name); err == nil {
			loc = l
		}
	}
	zoneCache[m] = loc
	return loc
}
