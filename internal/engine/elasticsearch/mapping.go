package elasticsearch

// DefaultAliasName is the default alias the engine reads and writes through.
// Physical indices carry a generation suffix and are swapped behind it.
const DefaultAliasName = "catalog_products"

// buildIndexMapping returns the full JSON mapping for a catalog index
// generation, including the autocomplete analyzer and the completion
// suggester field.
func buildIndexMapping() string {
	return `{
  "settings": {
    "number_of_shards": 1,
    "number_of_replicas": 0,
    "analysis": {
      "analyzer": {
        "autocomplete_analyzer": {
          "type": "custom",
          "tokenizer": "autocomplete_tokenizer",
          "filter": ["lowercase"]
        },
        "autocomplete_search": {
          "type": "custom",
          "tokenizer": "standard",
          "filter": ["lowercase"]
        }
      },
      "tokenizer": {
        "autocomplete_tokenizer": {
          "type": "edge_ngram",
          "min_gram": 2,
          "max_gram": 20,
          "token_chars": ["letter", "digit"]
        }
      }
    }
  },
  "mappings": {
    "properties": {
      "id":            { "type": "keyword" },
      "name":          { "type": "text", "analyzer": "standard", "fields": { "keyword": { "type": "keyword", "ignore_above": 256 }, "autocomplete": { "type": "text", "analyzer": "autocomplete_analyzer", "search_analyzer": "autocomplete_search" } } },
      "description":   { "type": "text", "analyzer": "standard" },
      "price":         { "type": "double" },
      "originalPrice": { "type": "double" },
      "discount":      { "type": "integer" },
      "categoryId":    { "type": "keyword" },
      "categoryName":  { "type": "text", "analyzer": "standard", "fields": { "keyword": { "type": "keyword" } } },
      "stock":         { "type": "integer" },
      "rating":        { "type": "float" },
      "reviewCount":   { "type": "integer" },
      "viewCount":     { "type": "integer" },
      "tags":          { "type": "keyword" },
      "isActive":      { "type": "boolean" },
      "isFeatured":    { "type": "boolean" },
      "isOnSale":      { "type": "boolean" },
      "createdAt":     { "type": "date" },
      "updatedAt":     { "type": "date" },
      "suggest":       { "type": "completion", "analyzer": "simple", "preserve_separators": true, "preserve_position_increments": true, "max_input_length": 50 }
    }
  }
}`
}
