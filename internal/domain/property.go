package domain

import "time"

// PropertyType is the kind of real-estate listing.
type PropertyType string

// Known property types. The empty value means "no constraint" in filters.
const (
	PropertyTypeApartment PropertyType = "apartamento"
	PropertyTypeHouse     PropertyType = "casa"
	PropertyTypePenthouse PropertyType = "cobertura"
	PropertyTypeLand      PropertyType = "terreno"
)

// ValidPropertyTypes returns the property type enumeration in display order.
func ValidPropertyTypes() []PropertyType {
	return []PropertyType{PropertyTypeApartment, PropertyTypeHouse, PropertyTypePenthouse, PropertyTypeLand}
}

// IsValid reports whether t is one of the known property types.
func (t PropertyType) IsValid() bool {
	for _, v := range ValidPropertyTypes() {
		if v == t {
			return true
		}
	}
	return false
}

// DisplayName returns the human-readable label for the type.
func (t PropertyType) DisplayName() string {
	switch t {
	case PropertyTypeApartment:
		return "Apartamento"
	case PropertyTypeHouse:
		return "Casa"
	case PropertyTypePenthouse:
		return "Cobertura"
	case PropertyTypeLand:
		return "Terreno"
	default:
		return "Todos os tipos"
	}
}

// ParsePropertyType converts raw input into a PropertyType. Unknown values
// yield the empty type rather than an error.
func ParsePropertyType(raw string) PropertyType {
	t := PropertyType(raw)
	if t.IsValid() {
		return t
	}
	return ""
}

// PropertyRecord is a listing as supplied by the data collaborator. The
// search engine only reads ID, Title, NeighborhoodName, City, Price,
// PropertyType and LocationID.
type PropertyRecord struct {
	ID               string       `json:"id"`
	Title            string       `json:"title"`
	NeighborhoodName string       `json:"neighborhood_name"`
	City             string       `json:"city"`
	State            string       `json:"state"`
	Price            float64      `json:"price"`
	PropertyType     PropertyType `json:"property_type"`
	LocationID       string       `json:"location_id"`

	Description     string    `json:"description,omitempty"`
	CondominiumFee  float64   `json:"condominium_fee,omitempty"`
	IPTU            float64   `json:"iptu,omitempty"`
	UsefulArea      float64   `json:"useful_area,omitempty"`
	TotalArea       float64   `json:"total_area,omitempty"`
	Bedrooms        int       `json:"bedrooms,omitempty"`
	Bathrooms       int       `json:"bathrooms,omitempty"`
	ParkingSpaces   int       `json:"parking_spaces,omitempty"`
	Amenities       []string  `json:"amenities,omitempty"`
	CondoFeatures   []string  `json:"condominium_features,omitempty"`
	Images          []string  `json:"images,omitempty"`
	RealtorName     string    `json:"realtor_name,omitempty"`
	RealtorCRECI    string    `json:"realtor_creci,omitempty"`
	RealtorPhone    string    `json:"realtor_phone,omitempty"`
	RealtorWhatsApp string    `json:"realtor_whatsapp,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// Location is an entry of the location selector.
type Location struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
}

// Neighborhood is a named area inside a location that has listings.
type Neighborhood struct {
	Name       string `json:"name"`
	LocationID string `json:"location_id"`
}
