package demogen

import (
	"sort"
	"strings"
)

// Locale is the per-country reference data used for people, places and phone numbers.
type Locale struct {
	Country         string
	Currency        string
	Timezone        string
	FirstNames      []string
	LastNames       []string
	Cities          []Weighted[string]
	FreeMailDomains []string
	TLD             string
}

// LocaleRegistry resolves a country code to its locale, with an explicit fallback for
// countries that have no provider.
type LocaleRegistry struct {
	byCountry map[string]*Locale
	fallback  *Locale
}

func NewLocaleRegistry(fallback *Locale, locales ...*Locale) *LocaleRegistry {
	r := &LocaleRegistry{byCountry: map[string]*Locale{}, fallback: fallback}
	for _, l := range append([]*Locale{fallback}, locales...) {
		r.byCountry[strings.ToUpper(l.Country)] = l
	}
	return r
}

// For returns the locale of country and whether it was an exact match.
func (r *LocaleRegistry) For(country string) (*Locale, bool) {
	if l, ok := r.byCountry[strings.ToUpper(strings.TrimSpace(country))]; ok {
		return l, true
	}
	return r.fallback, false
}

func (r *LocaleRegistry) Countries() []string {
	out := make([]string, 0, len(r.byCountry))
	for c := range r.byCountry {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

var commonFreeMail = []string{"gmail.com", "outlook.com", "yahoo.com"}

func DefaultLocales() *LocaleRegistry {
	us := &Locale{
		Country: "US", Currency: "USD", Timezone: "America/New_York", TLD: "com",
		FirstNames: []string{"James", "Mary", "Robert", "Patricia", "John", "Jennifer", "Michael", "Linda", "David", "Elizabeth", "William", "Susan", "Chris", "Jessica", "Daniel", "Sarah"},
		LastNames:  []string{"Smith", "Johnson", "Williams", "Brown", "Jones", "Garcia", "Miller", "Davis", "Rodriguez", "Martinez", "Wilson", "Anderson", "Taylor", "Thomas", "Moore", "Clark"},
		Cities: []Weighted[string]{
			{"New York", 20}, {"Los Angeles", 14}, {"Chicago", 12}, {"Houston", 9}, {"Austin", 8},
			{"Seattle", 8}, {"Boston", 8}, {"Denver", 7}, {"Atlanta", 7}, {"Miami", 7},
		},
		FreeMailDomains: commonFreeMail,
	}
	gb := &Locale{
		Country: "GB", Currency: "GBP", Timezone: "Europe/London", TLD: "co.uk",
		FirstNames: []string{"Oliver", "Amelia", "George", "Isla", "Harry", "Ava", "Jack", "Emily", "Charlie", "Sophie", "Thomas", "Grace", "James", "Lily"},
		LastNames:  []string{"Smith", "Jones", "Taylor", "Brown", "Williams", "Wilson", "Johnson", "Davies", "Evans", "Thomas", "Roberts", "Walker", "Wright", "Hughes"},
		Cities: []Weighted[string]{
			{"London", 35}, {"Manchester", 14}, {"Birmingham", 12}, {"Leeds", 9}, {"Bristol", 9},
			{"Edinburgh", 8}, {"Glasgow", 7}, {"Cambridge", 6},
		},
		FreeMailDomains: []string{"gmail.com", "outlook.com", "btinternet.com"},
	}
	de := &Locale{
		Country: "DE", Currency: "EUR", Timezone: "Europe/Berlin", TLD: "de",
		FirstNames: []string{"Lukas", "Anna", "Jonas", "Lena", "Felix", "Marie", "Maximilian", "Sophie", "Paul", "Laura", "Jürgen", "Katrin", "Stefan", "Sabine"},
		LastNames:  []string{"Müller", "Schmidt", "Schneider", "Fischer", "Weber", "Meyer", "Wagner", "Becker", "Schulz", "Hoffmann", "Koch", "Richter", "Krüger", "Weiß"},
		Cities: []Weighted[string]{
			{"Berlin", 25}, {"München", 18}, {"Hamburg", 15}, {"Köln", 12}, {"Frankfurt am Main", 12},
			{"Stuttgart", 9}, {"Düsseldorf", 9},
		},
		FreeMailDomains: []string{"gmx.de", "web.de", "gmail.com"},
	}
	fr := &Locale{
		Country: "FR", Currency: "EUR", Timezone: "Europe/Paris", TLD: "fr",
		FirstNames: []string{"Lucas", "Emma", "Hugo", "Léa", "Louis", "Chloé", "Gabriel", "Manon", "Jules", "Camille", "Théo", "Inès", "Arthur", "Zoé"},
		LastNames:  []string{"Martin", "Bernard", "Dubois", "Thomas", "Robert", "Richard", "Petit", "Durand", "Leroy", "Moreau", "Simon", "Laurent", "Lefèvre", "Girard"},
		Cities: []Weighted[string]{
			{"Paris", 35}, {"Lyon", 14}, {"Marseille", 12}, {"Toulouse", 10}, {"Bordeaux", 9},
			{"Nantes", 8}, {"Lille", 8}, {"Nice", 6},
		},
		FreeMailDomains: []string{"gmail.com", "orange.fr", "free.fr"},
	}
	es := &Locale{
		Country: "ES", Currency: "EUR", Timezone: "Europe/Madrid", TLD: "es",
		FirstNames: []string{"Hugo", "Lucía", "Martín", "Sofía", "Pablo", "María", "Alejandro", "Paula", "Daniel", "Carmen", "Javier", "Elena", "Sergio", "Laura"},
		LastNames:  []string{"García", "Fernández", "González", "Rodríguez", "López", "Martínez", "Sánchez", "Pérez", "Gómez", "Martín", "Jiménez", "Ruiz", "Díaz", "Moreno"},
		Cities: []Weighted[string]{
			{"Madrid", 32}, {"Barcelona", 28}, {"Valencia", 12}, {"Sevilla", 10}, {"Bilbao", 9}, {"Málaga", 9},
		},
		FreeMailDomains: []string{"gmail.com", "hotmail.es", "outlook.es"},
	}
	nl := &Locale{
		Country: "NL", Currency: "EUR", Timezone: "Europe/Amsterdam", TLD: "nl",
		FirstNames: []string{"Daan", "Emma", "Sem", "Julia", "Lucas", "Mila", "Levi", "Tess", "Finn", "Sophie", "Bram", "Anouk"},
		LastNames:  []string{"de Jong", "Jansen", "de Vries", "van den Berg", "Bakker", "Visser", "Smit", "Meijer", "de Boer", "Mulder", "Bos", "Vos"},
		Cities: []Weighted[string]{
			{"Amsterdam", 32}, {"Rotterdam", 22}, {"Utrecht", 16}, {"Den Haag", 14}, {"Eindhoven", 10}, {"Groningen", 6},
		},
		FreeMailDomains: []string{"gmail.com", "ziggo.nl", "outlook.com"},
	}
	au := &Locale{
		Country: "AU", Currency: "AUD", Timezone: "Australia/Sydney", TLD: "com.au",
		FirstNames: []string{"Jack", "Charlotte", "William", "Olivia", "Noah", "Mia", "Thomas", "Ava", "Liam", "Chloe", "Lachlan", "Matilda"},
		LastNames:  []string{"Smith", "Jones", "Williams", "Brown", "Wilson", "Taylor", "Nguyen", "Johnson", "Martin", "White", "Anderson", "Walker"},
		Cities: []Weighted[string]{
			{"Sydney", 32}, {"Melbourne", 30}, {"Brisbane", 15}, {"Perth", 11}, {"Adelaide", 8}, {"Canberra", 4},
		},
		FreeMailDomains: []string{"gmail.com", "bigpond.com", "outlook.com"},
	}
	ca := &Locale{
		Country: "CA", Currency: "CAD", Timezone: "America/Toronto", TLD: "ca",
		FirstNames: []string{"Liam", "Olivia", "Noah", "Emma", "Ethan", "Charlotte", "Lucas", "Amelia", "Benjamin", "Chloé", "Félix", "Léa"},
		LastNames:  []string{"Smith", "Tremblay", "Martin", "Roy", "Wilson", "Gagnon", "MacDonald", "Brown", "Côté", "Lee", "Campbell", "Bouchard"},
		Cities: []Weighted[string]{
			{"Toronto", 32}, {"Montréal", 22}, {"Vancouver", 18}, {"Calgary", 10}, {"Ottawa", 10}, {"Halifax", 8},
		},
		FreeMailDomains: commonFreeMail,
	}
	in := &Locale{
		Country: "IN", Currency: "INR", Timezone: "Asia/Kolkata", TLD: "in",
		FirstNames: []string{"Aarav", "Ananya", "Vivaan", "Diya", "Aditya", "Saanvi", "Arjun", "Priya", "Rohan", "Kavya", "Rahul", "Neha"},
		LastNames:  []string{"Sharma", "Patel", "Singh", "Kumar", "Gupta", "Reddy", "Iyer", "Nair", "Mehta", "Joshi", "Rao", "Chopra"},
		Cities: []Weighted[string]{
			{"Bengaluru", 25}, {"Mumbai", 22}, {"Delhi", 20}, {"Hyderabad", 12}, {"Pune", 11}, {"Chennai", 10},
		},
		FreeMailDomains: []string{"gmail.com", "yahoo.co.in", "rediffmail.com"},
	}
	br := &Locale{
		Country: "BR", Currency: "BRL", Timezone: "America/Sao_Paulo", TLD: "com.br",
		FirstNames: []string{"Miguel", "Alice", "Arthur", "Helena", "Gael", "Laura", "Heitor", "Valentina", "Davi", "Manuela", "João", "Beatriz"},
		LastNames:  []string{"Silva", "Santos", "Oliveira", "Souza", "Rodrigues", "Ferreira", "Alves", "Pereira", "Lima", "Gomes", "Costa", "Ribeiro"},
		Cities: []Weighted[string]{
			{"São Paulo", 35}, {"Rio de Janeiro", 22}, {"Belo Horizonte", 12}, {"Curitiba", 11}, {"Porto Alegre", 10}, {"Recife", 10},
		},
		FreeMailDomains: []string{"gmail.com", "hotmail.com", "uol.com.br"},
	}
	return NewLocaleRegistry(us, gb, de, fr, es, nl, au, ca, in, br)
}
