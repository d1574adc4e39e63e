// Package knowledge is the reference material appended to generation
// prompts: the shapes scenes may use, how to build them in three.js, common
// physics scenarios and the formulas behind them.
package knowledge

import (
	"fmt"
	"math"
)

// Shape is a primitive a scene may be built from.
type Shape string

const (
	Sphere   Shape = "sphere"
	Box      Shape = "box"
	Cylinder Shape = "cylinder"
	Cone     Shape = "cone"
	Torus    Shape = "torus"
	Capsule  Shape = "capsule"
	Plane    Shape = "plane"
	Particle Shape = "particle"
	Compound Shape = "compound"
	Softbody Shape = "softbody"
	Cloth    Shape = "cloth"
	Rope     Shape = "rope"
)

// Shapes lists every supported shape in prompt order.
var Shapes = []Shape{Sphere, Box, Cylinder, Cone, Torus, Capsule, Plane, Particle, Compound, Softbody, Cloth, Rope}

type shapeInfo struct {
	snippet string
	usage   string
}

var shapeTable = map[Shape]shapeInfo{
	Sphere:   {"new THREE.Mesh(new THREE.SphereGeometry(radius, 32, 32), material)", "balls, planets, bubbles or any round object"},
	Box:      {"new THREE.Mesh(new THREE.BoxGeometry(width, height, depth), material)", "crates, buildings, dice or any rectangular object"},
	Cylinder: {"new THREE.Mesh(new THREE.CylinderGeometry(radiusTop, radiusBottom, height, 32), material)", "pillars, cans, tubes or wheels"},
	Cone:     {"new THREE.Mesh(new THREE.ConeGeometry(radius, height, 32), material)", "trees, spikes or cones"},
	Torus:    {"new THREE.Mesh(new THREE.TorusGeometry(radius, tube, 16, 100), material)", "rings, donuts or loops"},
	Capsule:  {"new THREE.Mesh(new THREE.CapsuleGeometry(radius, length, 8, 16), material)", "characters, pills or rounded bars"},
	Plane:    {"new THREE.Mesh(new THREE.PlaneGeometry(width, height), material)", "ground, walls, water surfaces or backgrounds"},
	Particle: {"new THREE.Points(geometry, new THREE.PointsMaterial({ size }))", "smoke, fire, rain and other effects"},
	Compound: {"const group = new THREE.Group(); group.add(meshA, meshB)", "complex objects made from several shapes"},
	Softbody: {"animate geometry.attributes.position per frame", "jelly or other deformable objects"},
	Cloth:    {"new THREE.PlaneGeometry(w, h, segX, segY) with per-vertex animation", "flags, curtains or clothing"},
	Rope:     {"new THREE.Line(new THREE.BufferGeometry().setFromPoints(points), material)", "ropes, cables or chains"},
}

// Snippet returns the three.js construction of s.
func Snippet(s Shape) string {
	if info, ok := shapeTable[s]; ok {
		return info.snippet
	}
	return ""
}

// Usage returns what s is typically used for.
func Usage(s Shape) string {
	if info, ok := shapeTable[s]; ok {
		return info.usage
	}
	return ""
}

// Dimensions are the parameters a shape's measurements depend on. Unused
// fields are ignored.
type Dimensions struct {
	Radius float64
	Tube   float64
	Width  float64
	Height float64
	Depth  float64
	Length float64
}

// Measure holds whichever measurements apply to a shape.
type Measure struct {
	Volume      float64
	SurfaceArea float64
	Area        float64
	Length      float64
}

// Properties computes the measurements of s. Shapes without a closed form
// (particle, compound, softbody) return an error.
func Properties(s Shape, d Dimensions) (Measure, error) {
	r, h := d.Radius, d.Height
	switch s {
	case Sphere:
		return Measure{Volume: SphereVolume(r), SurfaceArea: 4 * math.Pi * r * r}, nil
	case Box:
		return Measure{
			Volume:      d.Width * h * d.Depth,
			SurfaceArea: 2 * (d.Width*h + d.Width*d.Depth + h*d.Depth),
		}, nil
	case Cylinder:
		return Measure{Volume: CylinderVolume(r, h), SurfaceArea: 2 * math.Pi * r * (r + h)}, nil
	case Cone:
		return Measure{
			Volume:      math.Pi * r * r * h / 3,
			SurfaceArea: math.Pi * r * (r + math.Hypot(h, r)),
		}, nil
	case Torus:
		return Measure{
			Volume:      2 * math.Pi * math.Pi * r * d.Tube * d.Tube,
			SurfaceArea: 4 * math.Pi * math.Pi * r * d.Tube,
		}, nil
	case Capsule:
		// A cylinder closed by two hemispheres.
		return Measure{
			Volume:      CylinderVolume(r, h) + SphereVolume(r),
			SurfaceArea: 2*math.Pi*r*h + 4*math.Pi*r*r,
		}, nil
	case Plane, Cloth:
		return Measure{Area: d.Width * h}, nil
	case Rope:
		return Measure{Length: d.Length}, nil
	default:
		return Measure{}, fmt.Errorf("shape %q has no closed form measurements", s)
	}
}

// SphereVolume is 4/3 pi r^3.
func SphereVolume(r float64) float64 { return 4.0 / 3.0 * math.Pi * r * r * r }

// CylinderVolume is pi r^2 h.
func CylinderVolume(r, h float64) float64 { return math.Pi * r * r * h }
