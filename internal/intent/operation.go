// Package intent classifies natural-language map queries into a closed set
// of operations using an LLM backend.
package intent

type Operation string

const (
	GetGISData                  Operation = "get_gis_data"
	FindLargestParcel           Operation = "find_largest_parcel"
	FindNLargestParcels         Operation = "find_n_largest_parcels"
	FindParcelsAboveArea        Operation = "find_parcels_above_area"
	FindParcelsNearGPZ          Operation = "find_parcels_near_gpz"
	FindParcelsNearLayer        Operation = "find_parcels_near_layer"
	FindParcelsWithoutBuildings Operation = "find_parcels_without_buildings"
	Chat                        Operation = "chat"
)

type opInfo struct {
	op          Operation
	description string
	params      string
}

// catalog is kept in prompt order.
var catalog = []opInfo{
	{GetGISData, "show a whole GIS layer on the map", `"layer_name": string`},
	{FindLargestParcel, "find the single largest parcel", ""},
	{FindNLargestParcels, "find the N largest parcels", `"n": positive integer`},
	{FindParcelsAboveArea, "find parcels larger than a threshold", `"min_area": square metres, >= 0`},
	{FindParcelsNearGPZ, "find parcels within a distance of a GPZ substation", `"radius_meters": number > 0`},
	{FindParcelsNearLayer, "find parcels within a distance of features of another layer", `"layer_name": string, "radius_meters": number > 0`},
	{FindParcelsWithoutBuildings, "find parcels with no building on them", ""},
	{Chat, "small talk, general questions or unclear intent", ""},
}

// Operations lists every member of the enum.
func Operations() []Operation {
	out := make([]Operation, len(catalog))
	for i, c := range catalog {
		out[i] = c.op
	}
	return out
}

func (o Operation) Valid() bool {
	for _, c := range catalog {
		if c.op == o {
			return true
		}
	}
	return false
}

func (o Operation) Description() string {
	for _, c := range catalog {
		if c.op == o {
			return c.description
		}
	}
	return ""
}
