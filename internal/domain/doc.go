// Package domain holds the field and layer model of the map service:
// extracted fields, their aggregation into layers, dimension derivation and
// selection of a single field from WMS dimension values.
package domain
