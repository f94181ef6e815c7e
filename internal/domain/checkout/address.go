package checkout

import (
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

// City is a supported delivery destination.
type City struct {
	Name  string
	Metro bool
}

// Delivery charges in BDT.
var (
	MetroDeliveryCharge   = decimal.NewFromInt(60)
	OutsideDeliveryCharge = decimal.NewFromInt(120)
)

var cities = []City{
	{Name: "Dhaka", Metro: true},
	{Name: "Chattogram"},
	{Name: "Khulna"},
	{Name: "Rajshahi"},
	{Name: "Sylhet"},
	{Name: "Barishal"},
	{Name: "Rangpur"},
	{Name: "Mymensingh"},
	{Name: "Cumilla"},
	{Name: "Gazipur"},
	{Name: "Narayanganj"},
}

// Cities returns the supported delivery cities, metro city first.
func Cities() []City {
	out := make([]City, len(cities))
	copy(out, cities)
	return out
}

// LookupCity finds a supported city by case-insensitive name.
func LookupCity(name string) (City, bool) {
	name = strings.TrimSpace(name)
	for _, c := range cities {
		if strings.EqualFold(c.Name, name) {
			return c, true
		}
	}
	return City{}, false
}

// DeliveryCharge returns the flat delivery charge for city. Unsupported or
// empty cities have no charge until corrected.
func DeliveryCharge(city string) decimal.Decimal {
	c, ok := LookupCity(city)
	switch {
	case !ok:
		return decimal.Zero
	case c.Metro:
		return MetroDeliveryCharge
	default:
		return OutsideDeliveryCharge
	}
}

// ShippingAddress is where the order is delivered.
type ShippingAddress struct {
	FullName     string
	Mobile       string
	Email        string
	AddressLine1 string
	AddressLine2 string
	City         string
	PostalCode   string
	Note         string
}

// Address field names used in validation errors.
const (
	FieldFullName     = "fullName"
	FieldMobile       = "mobile"
	FieldEmail        = "email"
	FieldAddressLine1 = "addressLine1"
	FieldCity         = "city"
	FieldMethod       = "paymentMethod"
	FieldOption       = "paymentOption"
)

// Bangladeshi local mobile number: 11 digits, operator prefix 013-019.
var mobilePattern = regexp.MustCompile(`^01[3-9][0-9]{8}$`)

// ValidateAddress checks every mandatory field and reports all violations
// together. It returns nil when the address is complete.
func ValidateAddress(a ShippingAddress) *ValidationError {
	errs := make(map[string]string)

	if strings.TrimSpace(a.FullName) == "" {
		errs[FieldFullName] = "full name is required"
	}

	switch mobile := strings.TrimSpace(a.Mobile); {
	case mobile == "":
		errs[FieldMobile] = "mobile number is required"
	case !mobilePattern.MatchString(mobile):
		errs[FieldMobile] = "enter a valid 11-digit mobile number starting with 01"
	}

	switch email := strings.TrimSpace(a.Email); {
	case email == "":
		errs[FieldEmail] = "email is required"
	case !validEmail(email):
		errs[FieldEmail] = "enter a valid email address"
	}

	if strings.TrimSpace(a.AddressLine1) == "" {
		errs[FieldAddressLine1] = "address is required"
	}

	if strings.TrimSpace(a.City) == "" {
		errs[FieldCity] = "city is required"
	} else if _, ok := LookupCity(a.City); !ok {
		errs[FieldCity] = "delivery is not available for this city"
	}

	if len(errs) == 0 {
		return nil
	}
	return &ValidationError{Fields: errs}
}

// validEmail is a minimal shape check: something before the last '@' and a
// dot somewhere after it.
func validEmail(email string) bool {
	at := strings.LastIndexByte(email, '@')
	if at <= 0 {
		return false
	}
	return strings.Contains(email[at+1:], ".")
}
