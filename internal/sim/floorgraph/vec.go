package floorgraph

import "math"

// Vec3 is a world-space position. Components are float32 to match the
// authoring data; equality is exact and positions used as cache keys must
// come from a node's stored position.
type Vec3 struct {
	X float32 `json:"x" yaml:"x"`
	Y float32 `json:"y" yaml:"y"`
	Z float32 `json:"z" yaml:"z"`
}

func V(x, y, z float32) Vec3 { return Vec3{X: x, Y: y, Z: z} }

func DistSq(a, b Vec3) float32 {
	dx := a.X - b.X
	dy := a.Y - b.Y
	dz := a.Z - b.Z
	return dx*dx + dy*dy + dz*dz
}

// Bits returns the raw IEEE-754 bits of each component. Two positions with the
// same Bits are bit-for-bit identical (unlike ==, which treats -0 and +0 as equal).
func (v Vec3) Bits() [3]uint32 {
	return [3]uint32{math.Float32bits(v.X), math.Float32bits(v.Y), math.Float32bits(v.Z)}
}

func (v Vec3) Array() [3]float32 { return [3]float32{v.X, v.Y, v.Z} }

func FromArray(a [3]float32) Vec3 { return Vec3{X: a[0], Y: a[1], Z: a[2]} }
