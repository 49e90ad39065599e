package types

import (
	"testing"
	"time"
)

func TestMarketplaceFromID(t *testing.T) {
	t.Parallel()

	cases := []struct {
		id   string
		want Marketplace
	}{
		{"ATVPDKIKX0DER", MarketplaceUS},
		{"A1F83G8C2ARO7P", MarketplaceUK},
		{"A1PA6795UKMFR9", MarketplaceDE},
		{"A21TJRUUN4KGV", MarketplaceIN},
		{"ARBP9OOSHTCHU", MarketplaceEG},
		{"NOT-A-MARKETPLACE", MarketplaceUS},
		{"", MarketplaceUS},
	}
	for _, tc := range cases {
		if got := MarketplaceFromID(tc.id); got != tc.want {
			t.Errorf("MarketplaceFromID(%q) = %s, want %s", tc.id, got, tc.want)
		}
	}
}

func TestLocationMappedMarket(t *testing.T) {
	t.Parallel()
	loc := MarketplaceUK.Location()
	if loc.String() != "Europe/London" {
		t.Errorf("UK location = %s, want Europe/London", loc)
	}
}

func TestLocationUnmappedMarketIsUTC(t *testing.T) {
	t.Parallel()
	if loc := MarketplaceEG.Location(); loc != time.UTC {
		t.Errorf("EG location = %s, want UTC (unmapped)", loc)
	}
	if loc := Marketplace("XX").Location(); loc != time.UTC {
		t.Errorf("unknown market location = %s, want UTC", loc)
	}
}

func TestLocationIsCached(t *testing.T) {
	t.Parallel()
	first := MarketplaceDE.Location()
	second := MarketplaceDE.Location()
	if first != second {
		t.Error("Location must return the cached *time.Location")
	}
}
