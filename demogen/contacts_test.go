package demogen

import (
	"strings"
	"testing"
	"time"

	"github.com/davidprivate500/gonthia-crm-sub001/utils"
)

func TestGeneratedEmailsAreValidAndUnique(t *testing.T) {
	r := NewRand(SeedFromString("emails")).Derive("contacts", "2025-01")
	pools := DefaultPools()
	us, _ := DefaultLocales().For("US")
	taken := map[string]struct{}{}
	for i := 0; i < 200; i++ {
		first, last := Pick(r, us.FirstNames), Pick(r, us.LastNames)
		email := uniqueEmail(r, pools, first, last, "acme.com", taken)
		if !utils.IsValidEmail(email) {
			t.Fatalf("invalid email %q for %s %s", email, first, last)
		}
		taken[email] = struct{}{}
	}
	if len(taken) < 150 {
		t.Fatalf("only %d distinct emails out of 200 draws", len(taken))
	}
}

func TestPhoneIsValidForRegion(t *testing.T) {
	r := NewRand(1337)
	for i := 0; i < 25; i++ {
		p := Phone(r, "us")
		if err := utils.ValidatePhoneNumber(p, "US"); err != nil {
			t.Fatalf("Phone() = %q: %v", p, err)
		}
	}
	if err := utils.ValidatePhoneNumber("+1 000", "US"); err == nil {
		t.Fatalf("short number accepted")
	}
}

func TestEveryLocaleHasPhoneAndTimezone(t *testing.T) {
	reg := DefaultLocales()
	countries := reg.Countries()
	if len(countries) != 10 {
		t.Fatalf("countries = %v", countries)
	}
	r := NewRand(7)
	for _, c := range countries {
		l, exact := reg.For(c)
		if !exact {
			t.Fatalf("%s resolved to the fallback locale", c)
		}
		if p := Phone(r, c); !strings.HasPrefix(p, "+") {
			t.Fatalf("%s phone %q is not international", c, p)
		}
		if _, err := time.LoadLocation(l.Timezone); err != nil {
			t.Skipf("tzdata unavailable: %v", err)
		}
	}
	if l, exact := reg.For("ZZ"); exact || l.Country != "US" {
		t.Fatalf("unknown country resolved to %s (exact %v)", l.Country, exact)
	}
}
