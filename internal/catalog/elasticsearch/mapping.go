package elasticsearch

// DefaultIndexName is the default index for listing documents.
const DefaultIndexName = "imoveis_properties"

// buildIndexMapping returns the listings index mapping. The searchable text
// fields are keywords with a lowercase normalizer so that wildcard queries
// behave as case-insensitive containment, exactly like in-process filtering.
func buildIndexMapping() string {
	return `{
  "settings": {
    "number_of_shards": 1,
    "number_of_replicas": 0,
    "analysis": {
      "normalizer": {
        "lowercase_normalizer": {
          "type": "custom",
          "filter": ["lowercase"]
        }
      }
    }
  },
  "mappings": {
    "properties": {
      "id":                   { "type": "keyword" },
      "title":                { "type": "keyword", "normalizer": "lowercase_normalizer", "fields": { "text": { "type": "text", "analyzer": "portuguese" } } },
      "neighborhood_name":    { "type": "keyword", "normalizer": "lowercase_normalizer" },
      "city":                 { "type": "keyword", "normalizer": "lowercase_normalizer", "fields": { "raw": { "type": "keyword" } } },
      "state":                { "type": "keyword" },
      "price":                { "type": "double" },
      "property_type":        { "type": "keyword" },
      "location_id":          { "type": "keyword" },
      "description":          { "type": "text", "analyzer": "portuguese" },
      "condominium_fee":      { "type": "double" },
      "iptu":                 { "type": "double" },
      "useful_area":          { "type": "double" },
      "total_area":           { "type": "double" },
      "bedrooms":             { "type": "integer" },
      "bathrooms":            { "type": "integer" },
      "parking_spaces":       { "type": "integer" },
      "amenities":            { "type": "keyword" },
      "condominium_features": { "type": "keyword" },
      "images":               { "type": "keyword", "index": false },
      "realtor_name":         { "type": "keyword" },
      "realtor_creci":        { "type": "keyword", "index": false },
      "realtor_phone":        { "type": "keyword", "index": false },
      "realtor_whatsapp":     { "type": "keyword", "index": false },
      "created_at":           { "type": "date" },
      "updated_at":           { "type": "date" }
    }
  }
}`
}
