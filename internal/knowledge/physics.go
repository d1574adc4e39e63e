package knowledge

import "math"

// Gravity is standard gravity in m/s^2.
const Gravity = 9.80665

// G is the gravitational constant in m^3 kg^-1 s^-2.
const G = 6.674e-11

// Scenario is a physics setup scenes are commonly asked to show.
type Scenario struct {
	Name    string
	Formula string
	Hint    string
}

// Scenarios lists the physics setups described to the generator.
var Scenarios = []Scenario{
	{"free fall", "y(t) = y0 - g t^2 / 2", "drop an object from rest; velocity grows linearly with time"},
	{"projectile", "x(t) = v0 cos(a) t, y(t) = v0 sin(a) t - g t^2 / 2", "launch at an angle; the path is a parabola"},
	{"pendulum", "theta(t) = theta0 cos(sqrt(g / L) t), T = 2 pi sqrt(L / g)", "small swings keep a constant period"},
	{"spring", "x(t) = A cos(sqrt(k / m) t)", "simple harmonic motion around the rest position"},
	{"collision", "m1 v1 + m2 v2 = m1 v1' + m2 v2'", "momentum is conserved; bounce with restitution e"},
	{"orbit", "v = sqrt(G M / r), T = 2 pi r / v", "circular orbits at constant speed"},
	{"bouncing", "v' = -e v at contact", "each bounce loses height by e^2"},
	{"rolling", "v = omega r", "rolling without slipping ties spin to speed"},
}

// Vec3 is a 3D vector.
type Vec3 [3]float64

// Add returns a + b.
func (a Vec3) Add(b Vec3) Vec3 { return Vec3{a[0] + b[0], a[1] + b[1], a[2] + b[2]} }

// Sub returns a - b.
func (a Vec3) Sub(b Vec3) Vec3 { return Vec3{a[0] - b[0], a[1] - b[1], a[2] - b[2]} }

// Scale returns a * k.
func (a Vec3) Scale(k float64) Vec3 { return Vec3{a[0] * k, a[1] * k, a[2] * k} }

// Dot returns the dot product.
func (a Vec3) Dot(b Vec3) float64 { return a[0]*b[0] + a[1]*b[1] + a[2]*b[2] }

// Cross returns the cross product.
func (a Vec3) Cross(b Vec3) Vec3 {
	return Vec3{
		a[1]*b[2] - a[2]*b[1],
		a[2]*b[0] - a[0]*b[2],
		a[0]*b[1] - a[1]*b[0],
	}
}

// Len returns the magnitude.
func (a Vec3) Len() float64 { return math.Sqrt(a.Dot(a)) }

// Normalize returns a unit vector, or the zero vector for zero input.
func (a Vec3) Normalize() Vec3 {
	l := a.Len()
	if l == 0 {
		return Vec3{}
	}
	return a.Scale(1 / l)
}

// ProjectilePosition returns the position at t of a body launched from the
// origin at speed v0 and angle (radians) above the horizontal.
func ProjectilePosition(v0, angle, t float64) (x, y float64) {
	return v0 * math.Cos(angle) * t, v0*math.Sin(angle)*t - Gravity*t*t/2
}

// PendulumPeriod returns the small angle period of a pendulum of length l.
func PendulumPeriod(l float64) float64 {
	return 2 * math.Pi * math.Sqrt(l/Gravity)
}

// OrbitalVelocity returns the circular orbit speed at radius r around mass m.
func OrbitalVelocity(m, r float64) float64 {
	return math.Sqrt(G * m / r)
}

// DragForce returns 0.5 rho v^2 Cd A.
func DragForce(cd, area, density, v float64) float64 {
	return 0.5 * density * v * v * cd * area
}

// ReynoldsNumber returns rho v L / mu.
func ReynoldsNumber(density, v, length, viscosity float64) float64 {
	return density * v * length / viscosity
}

// DegToRad converts degrees to radians.
func DegToRad(d float64) float64 { return d * math.Pi / 180 }
