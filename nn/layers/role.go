package layers

// Role tags a parameterized layer with its structural position in the
// network so that initialization rules can dispatch on it directly rather
// than matching on path substrings.
type Role int

const (
	RoleNone Role = iota
	RoleStem
	RoleDepthwise
	RolePointwise
	RoleNorm
	RoleClassifier
)

func (r Role) String() string {
	switch r {
	case RoleStem:
		return "stem"
	case RoleDepthwise:
		return "depthwise"
	case RolePointwise:
		return "pointwise"
	case RoleNorm:
		return "norm"
	case RoleClassifier:
		return "classifier"
	default:
		return "none"
	}
}
