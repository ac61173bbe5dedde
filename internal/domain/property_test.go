package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidPropertyTypes_Order(t *testing.T) {
	assert.Equal(t,
		[]PropertyType{PropertyTypeApartment, PropertyTypeHouse, PropertyTypePenthouse, PropertyTypeLand},
		ValidPropertyTypes(),
	)
}

func TestParsePropertyType(t *testing.T) {
	tests := []struct {
		raw  string
		want PropertyType
	}{
		{"apartamento", PropertyTypeApartment},
		{"casa", PropertyTypeHouse},
		{"cobertura", PropertyTypePenthouse},
		{"terreno", PropertyTypeLand},
		{"", ""},
		{"Casa", ""},
		{"chale", ""},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			assert.Equal(t, tt.want, ParsePropertyType(tt.raw))
		})
	}
}

func TestPropertyType_DisplayName(t *testing.T) {
	assert.Equal(t, "Apartamento", PropertyTypeApartment.DisplayName())
	assert.Equal(t, "Terreno", PropertyTypeLand.DisplayName())
	assert.Equal(t, "Todos os tipos", PropertyType("").DisplayName())
}

func TestSearchPhase_String(t *testing.T) {
	assert.Equal(t, "idle", PhaseIdle.String())
	assert.Equal(t, "searching", PhaseSearching.String())
}
