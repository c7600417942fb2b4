package api

const searchSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "additionalProperties": false,
  "properties": {
    "bucket": {"enum": ["", "in_progress", "needs_attention", "awaiting_customer", "done", "void"]},
    "sort": {
      "type": "object",
      "additionalProperties": false,
      "properties": {
        "field": {"type": "string", "maxLength": 128},
        "direction": {"enum": ["", "asc", "desc"]}
      }
    },
    "filter": {
      "type": "object",
      "additionalProperties": false,
      "properties": {
        "current_status": {"type": "string", "maxLength": 128},
        "currency": {"type": "string", "maxLength": 8},
        "acquirer_name": {"type": "string", "maxLength": 256},
        "merchant_name": {"type": "string", "maxLength": 256},
        "merchant_category_code": {"type": ["string", "integer"]},
        "merchant_id": {"type": "string", "maxLength": 64},
        "reference_number": {"type": "string", "maxLength": 64},
        "tid": {"type": "string", "maxLength": 64},
        "amount_min": {"$ref": "#/$defs/amount"},
        "amount_max": {"$ref": "#/$defs/amount"},
        "refund_amount_min": {"$ref": "#/$defs/amount"},
        "refund_amount_max": {"$ref": "#/$defs/amount"},
        "date_from": {"type": "string", "minLength": 10},
        "date_to": {"type": "string", "minLength": 10},
        "refund_received": {"$ref": "#/$defs/tristate"},
        "settled": {"$ref": "#/$defs/tristate"}
      }
    }
  },
  "$defs": {
    "amount": {
      "type": ["number", "string"],
      "pattern": "^-?[0-9]+(\\.[0-9]+)?$"
    },
    "tristate": {
      "oneOf": [
        {"type": "boolean"},
        {"enum": ["", "yes", "no"]}
      ]
    }
  }
}`
