package service

import "github.com/ffimoveis/imoveis/internal/domain"

// UpsertPropertyInput is the payload of an admin write and of property
// change events.
type UpsertPropertyInput struct {
	ID               string  `json:"id" validate:"required,max=64"`
	Title            string  `json:"title" validate:"required,max=200"`
	NeighborhoodName string  `json:"neighborhood_name" validate:"max=120"`
	City             string  `json:"city" validate:"required,max=120"`
	State            string  `json:"state" validate:"omitempty,uf"`
	Price            float64 `json:"price" validate:"gte=0"`
	PropertyType     string  `json:"property_type" validate:"required,oneof=apartamento casa cobertura terreno"`
	LocationID       string  `json:"location_id" validate:"max=120"`

	Description     string   `json:"description" validate:"max=5000"`
	CondominiumFee  float64  `json:"condominium_fee" validate:"gte=0"`
	IPTU            float64  `json:"iptu" validate:"gte=0"`
	UsefulArea      float64  `json:"useful_area" validate:"gte=0"`
	TotalArea       float64  `json:"total_area" validate:"gte=0"`
	Bedrooms        int      `json:"bedrooms" validate:"gte=0"`
	Bathrooms       int      `json:"bathrooms" validate:"gte=0"`
	ParkingSpaces   int      `json:"parking_spaces" validate:"gte=0"`
	Amenities       []string `json:"amenities"`
	CondoFeatures   []string `json:"condominium_features"`
	Images          []string `json:"images" validate:"dive,url"`
	RealtorName     string   `json:"realtor_name" validate:"max=120"`
	RealtorCRECI    string   `json:"realtor_creci" validate:"max=32"`
	RealtorPhone    string   `json:"realtor_phone" validate:"max=32"`
	RealtorWhatsApp string   `json:"realtor_whatsapp" validate:"max=32"`
}

// Record converts the input into a listing. The location id and timestamps
// are filled in by the backend.
func (in *UpsertPropertyInput) Record() *domain.PropertyRecord {
	return &domain.PropertyRecord{
		ID:               in.ID,
		Title:            in.Title,
		NeighborhoodName: in.NeighborhoodName,
		City:             in.City,
		State:            in.State,
		Price:            in.Price,
		PropertyType:     domain.PropertyType(in.PropertyType),
		LocationID:       in.LocationID,
		Description:      in.Description,
		CondominiumFee:   in.CondominiumFee,
		IPTU:             in.IPTU,
		UsefulArea:       in.UsefulArea,
		TotalArea:        in.TotalArea,
		Bedrooms:         in.Bedrooms,
		Bathrooms:        in.Bathrooms,
		ParkingSpaces:    in.ParkingSpaces,
		Amenities:        in.Amenities,
		CondoFeatures:    in.CondoFeatures,
		Images:           in.Images,
		RealtorName:      in.RealtorName,
		RealtorCRECI:     in.RealtorCRECI,
		RealtorPhone:     in.RealtorPhone,
		RealtorWhatsApp:  in.RealtorWhatsApp,
	}
}

// PropertyDeletedPayload is the data of a property.deleted event.
type PropertyDeletedPayload struct {
	ID string `json:"id" validate:"required"`
}
