package domain

import "strings"

type EntityType string

const (
	EntityPerson        EntityType = "PERSON"
	EntityEmail         EntityType = "EMAIL_ADDRESS"
	EntityPhone         EntityType = "PHONE_NUMBER"
	EntitySSN           EntityType = "US_SSN"
	EntityCreditCard    EntityType = "CREDIT_CARD"
	EntityIPAddress     EntityType = "IP_ADDRESS"
	EntityLocation      EntityType = "LOCATION"
	EntityDriverLicense EntityType = "US_DRIVER_LICENSE"
	EntityDateTime      EntityType = "DATE_TIME"
)

// DefaultEntities is the taxonomy scanned when no subset is configured.
var DefaultEntities = []EntityType{
	EntityPerson,
	EntityEmail,
	EntityPhone,
	EntitySSN,
	EntityCreditCard,
	EntityIPAddress,
	EntityLocation,
	EntityDriverLicense,
}

var placeholders = map[EntityType]string{
	EntityPerson:        "[PERSON]",
	EntityEmail:         "[EMAIL]",
	EntityPhone:         "[PHONE]",
	EntitySSN:           "[SSN]",
	EntityCreditCard:    "[CREDIT_CARD]",
	EntityIPAddress:     "[IP_ADDRESS]",
	EntityLocation:      "[LOCATION]",
	EntityDriverLicense: "[DRIVER_LICENSE]",
	EntityDateTime:      "[DATETIME]",
}

func (t EntityType) Valid() bool {
	_, ok := placeholders[t]
	return ok
}

func (t EntityType) Placeholder() string {
	if p, ok := placeholders[t]; ok {
		return p
	}
	return "[" + strings.ToUpper(string(t)) + "]"
}

// Placeholders lists every placeholder token the anonymizer can emit.
func Placeholders() []string {
	out := make([]string, 0, len(placeholders))
	for _, p := range placeholders {
		out = append(out, p)
	}
	return out
}

func ParseEntityType(s string) (EntityType, bool) {
	t := EntityType(strings.ToUpper(strings.TrimSpace(s)))
	return t, t.Valid()
}

type PIIEntity struct {
	Type        EntityType
	Start       int
	End         int
	Score       float64
	Placeholder string
}

func (e PIIEntity) Len() int {
	return e.End - e.Start
}
