package handshake

import (
	"bytes"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/appnet-org/naia/pkg/event"
	"github.com/stretchr/testify/require"
)

const addr = "127.0.0.1:9000"

// TestHandshake_HappyPath covers scenario S1: challenge -> connect ->
// connected, with the server's tick adopted by the client driver.
func TestHandshake_HappyPath(t *testing.T) {
	validator, err := NewValidator(nil)
	require.NoError(t, err)

	driver := NewDriver(100*time.Millisecond, 100, nil)
	now := time.Unix(0, 0)

	require.True(t, driver.ShouldSend(now))
	ccr, err := driver.BuildOutgoing(now, nil)
	require.NoError(t, err)

	scr, err := validator.HandleChallengeRequest(ccr, addr, 7)
	require.NoError(t, err)

	require.NoError(t, driver.HandleChallengeResponse(scr))
	require.Equal(t, StateAwaitingConnect, driver.State())
	require.Equal(t, uint16(7), driver.ServerTick())

	ccReq, err := driver.BuildOutgoing(now, nil)
	require.NoError(t, err)

	scResp, authEvt, err := validator.HandleConnectRequest(ccReq, addr, nil)
	require.NoError(t, err)
	require.Nil(t, authEvt)
	require.Empty(t, scResp)

	driver.HandleConnectResponse()
	require.True(t, driver.Connected())
}

// TestHandshake_ReplayRejected covers scenario S2: the client only adopts
// a challenge response whose echoed timestamp matches its own T.
func TestHandshake_ReplayRejected(t *testing.T) {
	driver := NewDriver(100*time.Millisecond, 100, nil)
	now := time.Unix(0, 0)
	_, err := driver.BuildOutgoing(now, nil)
	require.NoError(t, err)

	// Hand-build a ServerChallengeResponse echoing T=99 instead of 100.
	body := make([]byte, 0, 2+8+DigestSize)
	body = append(body, 0, 7) // server_tick BE
	body = writeUint64(body, 99)
	body = append(body, make([]byte, DigestSize)...)

	require.NoError(t, driver.HandleChallengeResponse(body))
	require.Equal(t, StateAwaitingChallenge, driver.State(), "mismatched echo must not advance state")
	require.True(t, driver.ShouldSend(now.Add(200*time.Millisecond)))
}

func TestHandshake_DigestMismatchRejected(t *testing.T) {
	validator, err := NewValidator(nil)
	require.NoError(t, err)

	body := writeUint64(nil, 42)
	body = append(body, make([]byte, DigestSize)...) // wrong digest, all zero

	_, _, err = validator.HandleConnectRequest(body, addr, nil)
	require.ErrorIs(t, err, ErrDigestMismatch)
}

type authEvent struct {
	ok bool
}

func (e *authEvent) Write(w io.Writer) error {
	if e.ok {
		_, err := w.Write([]byte{1})
		return err
	}
	_, err := w.Write([]byte{0})
	return err
}
func (e *authEvent) Read(r io.Reader) error {
	b, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	e.ok = len(b) > 0 && b[0] == 1
	return nil
}
func (e *authEvent) TypeID() event.TypeID { return 50 }
func (e *authEvent) IsGuaranteed() bool   { return true }
func (e *authEvent) Clone() event.Event {
	cp := *e
	return &cp
}

type authRegistry struct{}

func (authRegistry) EventNaiaID(t event.TypeID) (uint16, bool) {
	if t == 50 {
		return 500, true
	}
	return 0, false
}
func (authRegistry) CreateEvent(naiaID uint16, payload []byte) (event.Event, bool) {
	if naiaID != 500 {
		return nil, false
	}
	e := &authEvent{}
	_ = e.Read(bytes.NewReader(payload))
	return e, true
}

func TestHandshake_AuthPayloadValidated(t *testing.T) {
	rejectErr := errors.New("bad credentials")
	validator, err := NewValidator(func(e event.Event) error {
		ae, ok := e.(*authEvent)
		if !ok || !ae.ok {
			return rejectErr
		}
		return nil
	})
	require.NoError(t, err)

	driver := NewDriver(100*time.Millisecond, 100, &authEvent{ok: true})
	now := time.Unix(0, 0)
	ccr, _ := driver.BuildOutgoing(now, nil)
	scr, err := validator.HandleChallengeRequest(ccr, addr, 1)
	require.NoError(t, err)
	require.NoError(t, driver.HandleChallengeResponse(scr))

	ccReq, err := driver.BuildOutgoing(now, authRegistry{})
	require.NoError(t, err)

	_, authEvt, err := validator.HandleConnectRequest(ccReq, addr, authRegistry{})
	require.NoError(t, err)
	require.True(t, authEvt.(*authEvent).ok)
}

func TestHandshake_AuthPayloadRejected(t *testing.T) {
	rejectErr := errors.New("bad credentials")
	validator, err := NewValidator(func(e event.Event) error {
		ae, ok := e.(*authEvent)
		if !ok || !ae.ok {
			return rejectErr
		}
		return nil
	})
	require.NoError(t, err)

	driver := NewDriver(100*time.Millisecond, 100, &authEvent{ok: false})
	now := time.Unix(0, 0)
	ccr, _ := driver.BuildOutgoing(now, nil)
	scr, err := validator.HandleChallengeRequest(ccr, addr, 1)
	require.NoError(t, err)
	require.NoError(t, driver.HandleChallengeResponse(scr))

	ccReq, err := driver.BuildOutgoing(now, authRegistry{})
	require.NoError(t, err)

	_, _, err = validator.HandleConnectRequest(ccReq, addr, authRegistry{})
	require.ErrorIs(t, err, rejectErr)
}
