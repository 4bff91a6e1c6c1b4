// Package demo supplies the example Event and Entity types SPEC_FULL.md
// calls for: a closed set of application payloads exercising every wire
// path this module's core implements (guaranteed and unreliable events, an
// auth payload, and a server-authoritative entity with partial-diff
// updates and field-level interpolation). Grounded on the teacher's use of
// google.golang.org/protobuf for on-wire encoding, narrowed here to the
// encoding/protowire primitives (AppendFixed32/AppendString and their
// Consume counterparts) rather than full generated messages, since these
// payloads have no nested or optional fields to justify a .proto schema.
package demo

import (
	"fmt"
	"io"
	"math"

	"github.com/appnet-org/naia/pkg/entity"
	"github.com/appnet-org/naia/pkg/event"
	"github.com/appnet-org/naia/pkg/manifest"
	"google.golang.org/protobuf/encoding/protowire"
)

// Go-side TypeIDs. Stable within this package; the wire-visible naia_id is
// assigned separately by Register, per spec.md §3's Manifest.
const (
	TypeChat event.TypeID = iota + 1
	TypeInput
	TypeAuth
)

const TypePlayer entity.TypeID = 1

// Default naia_ids used by Register, matching the order types are listed
// in SPEC_FULL.md §3.1.
const (
	NaiaIDChat uint16 = iota + 1
	NaiaIDInput
	NaiaIDAuth
)

const NaiaIDPlayer uint16 = 1

// Register assigns this package's default naia_ids to m. Both sides of a
// connection must call Register against manifests built the same way for
// the wire protocol to interoperate.
func Register(m *manifest.Manifest) error {
	if err := m.RegisterEvent(TypeChat, NaiaIDChat, func() event.Event { return &ChatEvent{} }); err != nil {
		return err
	}
	if err := m.RegisterEvent(TypeInput, NaiaIDInput, func() event.Event { return &InputEvent{} }); err != nil {
		return err
	}
	if err := m.RegisterEvent(TypeAuth, NaiaIDAuth, func() event.Event { return &AuthEvent{} }); err != nil {
		return err
	}
	if err := m.RegisterEntity(TypePlayer, NaiaIDPlayer, func() entity.Entity { return &PlayerEntity{} }); err != nil {
		return err
	}
	return nil
}

func readAll(r io.Reader) ([]byte, error) {
	b, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("demo: reading payload: %w", err)
	}
	return b, nil
}

// readFixed32/readFloat4/readString give PlayerEntity's Read/ReadPartial
// a self-delimiting decode off a shared io.Reader. Unlike events (whose
// ProcessIncoming hands CreateEvent a payload slice already bounded by
// an explicit length prefix), an Entity block carries no per-item length
// (spec.md §6): PlayerEntity is read directly off the packet body's
// shared reader alongside whatever item follows it, so it must consume
// exactly its own bytes rather than slurping the rest of the stream.
func readFixed32(r io.Reader) (uint32, error) {
	var buf [4]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, err
	}
	v, n := protowire.ConsumeFixed32(buf[:])
	if n < 0 {
		return 0, protowire.ParseError(n)
	}
	return v, nil
}

func readFloat4(r io.Reader) (a, b, c, d float32, err error) {
	bits := make([]uint32, 4)
	for i := range bits {
		v, err := readFixed32(r)
		if err != nil {
			return 0, 0, 0, 0, fmt.Errorf("demo: reading float: %w", err)
		}
		bits[i] = v
	}
	return math.Float32frombits(bits[0]), math.Float32frombits(bits[1]),
		math.Float32frombits(bits[2]), math.Float32frombits(bits[3]), nil
}

// readString decodes a protowire-style length-delimited string: a varint
// byte count followed by that many raw bytes, read byte-by-byte off r
// since the varint's own length isn't known up front.
func readString(r io.Reader) (string, error) {
	var length uint64
	var shift uint
	for {
		var b [1]byte
		if _, err := io.ReadFull(r, b[:]); err != nil {
			return "", fmt.Errorf("demo: reading string length: %w", err)
		}
		length |= uint64(b[0]&0x7f) << shift
		if b[0]&0x80 == 0 {
			break
		}
		shift += 7
		if shift >= 64 {
			return "", fmt.Errorf("demo: string length varint too long")
		}
	}

	buf := make([]byte, length)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", fmt.Errorf("demo: reading string body: %w", err)
	}
	return string(buf), nil
}

// ChatEvent is a guaranteed event carrying a chat line, per SPEC_FULL.md
// §3.1.
type ChatEvent struct {
	From string
	Body string
}

func (e *ChatEvent) Write(w io.Writer) error {
	var buf []byte
	buf = protowire.AppendString(buf, e.From)
	buf = protowire.AppendString(buf, e.Body)
	_, err := w.Write(buf)
	return err
}

func (e *ChatEvent) Read(r io.Reader) error {
	buf, err := readAll(r)
	if err != nil {
		return err
	}
	from, n := protowire.ConsumeString(buf)
	if n < 0 {
		return fmt.Errorf("demo: ChatEvent.From: %w", protowire.ParseError(n))
	}
	buf = buf[n:]
	body, n := protowire.ConsumeString(buf)
	if n < 0 {
		return fmt.Errorf("demo: ChatEvent.Body: %w", protowire.ParseError(n))
	}
	e.From, e.Body = from, body
	return nil
}

func (e *ChatEvent) TypeID() event.TypeID { return TypeChat }
func (e *ChatEvent) IsGuaranteed() bool   { return true }
func (e *ChatEvent) Clone() event.Event {
	cp := *e
	return &cp
}

// InputEvent is an unreliable per-tick input sample, per SPEC_FULL.md §3.1:
// losing one is harmless since the next tick supersedes it.
type InputEvent struct {
	Tick    uint16
	Buttons uint8
}

func (e *InputEvent) Write(w io.Writer) error {
	var buf []byte
	buf = protowire.AppendFixed32(buf, uint32(e.Tick))
	buf = append(buf, e.Buttons)
	_, err := w.Write(buf)
	return err
}

func (e *InputEvent) Read(r io.Reader) error {
	buf, err := readAll(r)
	if err != nil {
		return err
	}
	tick, n := protowire.ConsumeFixed32(buf)
	if n < 0 {
		return fmt.Errorf("demo: InputEvent.Tick: %w", protowire.ParseError(n))
	}
	buf = buf[n:]
	if len(buf) < 1 {
		return fmt.Errorf("demo: InputEvent.Buttons: short buffer")
	}
	e.Tick = uint16(tick)
	e.Buttons = buf[0]
	return nil
}

func (e *InputEvent) TypeID() event.TypeID { return TypeInput }
func (e *InputEvent) IsGuaranteed() bool   { return false }
func (e *InputEvent) Clone() event.Event {
	cp := *e
	return &cp
}

// AuthEvent carries the application's connect-time credential, per
// SPEC_FULL.md §3.1 and spec.md §4.6's "optional application-supplied auth
// payload". It reports itself as guaranteed; inside the handshake that flag
// plays no part, since every ClientConnectRequest retry re-encodes the
// token anyway.
type AuthEvent struct {
	Token string
}

func (e *AuthEvent) Write(w io.Writer) error {
	_, err := w.Write(protowire.AppendString(nil, e.Token))
	return err
}

func (e *AuthEvent) Read(r io.Reader) error {
	buf, err := readAll(r)
	if err != nil {
		return err
	}
	token, n := protowire.ConsumeString(buf)
	if n < 0 {
		return fmt.Errorf("demo: AuthEvent.Token: %w", protowire.ParseError(n))
	}
	e.Token = token
	return nil
}

func (e *AuthEvent) TypeID() event.TypeID { return TypeAuth }
func (e *AuthEvent) IsGuaranteed() bool   { return true }
func (e *AuthEvent) Clone() event.Event {
	cp := *e
	return &cp
}

// PlayerEntity is the server-authoritative entity SPEC_FULL.md §3.1/§4.9
// calls for: a 2D position/velocity pair plus a display name, replicated
// in full on Create and diffed to just position/velocity on Update (the
// name never changes after creation, so ReadPartial omits it — see
// SPEC_FULL.md §4.7 EXPANSION's diff-representation note).
type PlayerEntity struct {
	X, Y   float32
	VX, VY float32
	Name   string
}

func (e *PlayerEntity) Write(w io.Writer) error {
	var buf []byte
	buf = appendFloat4(buf, e.X, e.Y, e.VX, e.VY)
	buf = protowire.AppendString(buf, e.Name)
	_, err := w.Write(buf)
	return err
}

func (e *PlayerEntity) Read(r io.Reader) error {
	x, y, vx, vy, err := readFloat4(r)
	if err != nil {
		return fmt.Errorf("demo: PlayerEntity: %w", err)
	}
	name, err := readString(r)
	if err != nil {
		return fmt.Errorf("demo: PlayerEntity.Name: %w", err)
	}
	e.X, e.Y, e.VX, e.VY, e.Name = x, y, vx, vy, name
	return nil
}

// ReadPartial applies an Update diff: just the four float fields, per the
// comment on PlayerEntity above.
func (e *PlayerEntity) ReadPartial(r io.Reader) error {
	x, y, vx, vy, err := readFloat4(r)
	if err != nil {
		return fmt.Errorf("demo: PlayerEntity partial: %w", err)
	}
	e.X, e.Y, e.VX, e.VY = x, y, vx, vy
	return nil
}

func (e *PlayerEntity) TypeID() entity.TypeID { return TypePlayer }

func (e *PlayerEntity) Clone() entity.Entity {
	cp := *e
	return &cp
}

func (e *PlayerEntity) Equals(other entity.Entity) bool {
	o, ok := other.(*PlayerEntity)
	return ok && *e == *o
}

// Interpolate linearly smooths position and velocity between from (the
// stored snapshot) and the receiver (the live value) at fraction frac,
// satisfying spec.md §9's "per-field smoothing policy is delegated to the
// entity type". Name is never smoothed; it is copied from the live value.
func (e *PlayerEntity) Interpolate(from entity.Entity, frac float64) entity.Entity {
	o := from.(*PlayerEntity)
	lerp := func(a, b float32) float32 {
		return a + float32(frac)*(b-a)
	}
	return &PlayerEntity{
		X:    lerp(o.X, e.X),
		Y:    lerp(o.Y, e.Y),
		VX:   lerp(o.VX, e.VX),
		VY:   lerp(o.VY, e.VY),
		Name: e.Name,
	}
}

func appendFloat4(buf []byte, a, b, c, d float32) []byte {
	buf = protowire.AppendFixed32(buf, math.Float32bits(a))
	buf = protowire.AppendFixed32(buf, math.Float32bits(b))
	buf = protowire.AppendFixed32(buf, math.Float32bits(c))
	buf = protowire.AppendFixed32(buf, math.Float32bits(d))
	return buf
}

