package glitch

// Uniforms is the fragment program's input slot storage: the ten effect
// scalars plus the monotonically increasing time accumulator and the
// viewport resolution vector. One Uniforms value is constant across one
// rendered frame.
type Uniforms struct {
	Params
	Time float64
	ResX float64
	ResY float64
}

// Apply copies the ten parameter scalars into their uniform slots. This is
// a plain field overwrite: no validation, no reallocation, effective on the
// next frame drawn with the storage.
func (u *Uniforms) Apply(p Params) {
	u.Params = p
}
