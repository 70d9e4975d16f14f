// Package material holds the recyclable material vocabulary shared by the
// normalizer, the points calculator and the ledger.
package material

// Type is a canonical material name.
type Type string

const (
	Plastic   Type = "plastic"
	Cardboard Type = "cardboard"
	Paper     Type = "paper"
	Glass     Type = "glass"
	Metal     Type = "metal"
	Aluminum  Type = "aluminum"
	Unknown   Type = "unknown"
)

// Canonical lists every accepted material in a stable order.
var Canonical = []Type{Plastic, Cardboard, Paper, Glass, Metal, Aluminum, Unknown}

const (
	// MinRIC and MaxRIC bound the Resin Identification Code.
	MinRIC = 1
	MaxRIC = 7
)

// Known reports whether t is a recognized material other than Unknown.
func (t Type) Known() bool {
	switch t {
	case Plastic, Cardboard, Paper, Glass, Metal, Aluminum:
		return true
	}
	return false
}

func (t Type) String() string { return string(t) }

// ValidRIC reports whether code is a Resin Identification Code.
func ValidRIC(code int) bool {
	return code >= MinRIC && code <= MaxRIC
}

// Classification is the validated result of analyzing one image.
type Classification struct {
	Type        Type
	RICCode     *int
	Confidence  int
	Recyclable  bool
	Uncertain   bool
	Description string
}

// RIC returns the code and whether it is present.
func (c Classification) RIC() (int, bool) {
	if c.RICCode == nil {
		return 0, false
	}
	return *c.RICCode, true
}
