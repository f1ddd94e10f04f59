package wsrelay

import (
	"bytes"
	"io"
	"testing"
	"time"

	"github.com/llmgateway/gateway/internal/wsframe"
)

func TestPumpClientToUpstreamForwardsTextAsFrame(t *testing.T) {
	downR, downW := io.Pipe()
	var upstream bytes.Buffer
	idle := newIdleTimer(time.Minute)

	done := make(chan error, 1)
	go func() { done <- pumpClientToUpstream(downR, &upstream, idle) }()

	if err := wsframe.WriteFrame(downW, wsframe.OpcodeText, []byte("hi")); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}
	if err := wsframe.WriteFrame(downW, wsframe.OpcodeClose, nil); err != nil {
		t.Fatalf("WriteFrame close: %v", err)
	}
	downW.Close()

	if err := <-done; err != nil {
		t.Fatalf("pumpClientToUpstream: %v", err)
	}

	f, err := wsframe.ReadFrame(&upstream)
	if err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}
	if f.Opcode != wsframe.OpcodeText || string(f.Payload) != "hi" {
		t.Fatalf("unexpected relayed frame: %+v", f)
	}
}

func TestPumpClientToUpstreamAnswersPing(t *testing.T) {
	downR, downW := io.Pipe()
	var upstream bytes.Buffer
	idle := newIdleTimer(time.Minute)

	done := make(chan error, 1)
	go func() {
		done <- pumpClientToUpstream(downR, &upstream, idle)
	}()

	if err := wsframe.WriteFrame(downW, wsframe.OpcodePing, []byte("p")); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}
	if err := wsframe.WriteFrame(downW, wsframe.OpcodeClose, nil); err != nil {
		t.Fatalf("WriteFrame close: %v", err)
	}
	downW.Close()
	<-done

	f, err := wsframe.ReadFrame(&upstream)
	if err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}
	if f.Opcode != wsframe.OpcodePong || string(f.Payload) != "p" {
		t.Fatalf("expected pong echoing ping payload, got %+v", f)
	}
}

func TestPumpUpstreamToClientForwardsUnmasked(t *testing.T) {
	var upstream bytes.Buffer
	var downstream bytes.Buffer
	idle := newIdleTimer(time.Minute)

	if err := wsframe.WriteServerFrame(&upstream, wsframe.OpcodeText, []byte("from upstream")); err != nil {
		t.Fatalf("WriteServerFrame: %v", err)
	}

	err := pumpUpstreamToClient(&upstream, &downstream, idle)
	if err != nil {
		t.Fatalf("pumpUpstreamToClient: %v", err)
	}

	raw := append([]byte(nil), downstream.Bytes()...)
	if len(raw) < 2 || raw[1]&0x80 != 0 {
		t.Fatalf("expected mask bit clear on frame to downstream, got %v", raw)
	}

	f, err := wsframe.ReadFrame(&downstream)
	if err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}
	if f.Opcode != wsframe.OpcodeText || string(f.Payload) != "from upstream" {
		t.Fatalf("unexpected frame to downstream: %+v", f)
	}
}

func TestPumpUpstreamToClientSendsCloseCode1000(t *testing.T) {
	var upstream bytes.Buffer
	var downstream bytes.Buffer
	idle := newIdleTimer(time.Minute)

	if err := wsframe.WriteServerFrame(&upstream, wsframe.OpcodeClose, nil); err != nil {
		t.Fatalf("WriteServerFrame: %v", err)
	}

	if err := pumpUpstreamToClient(&upstream, &downstream, idle); err != nil {
		t.Fatalf("pumpUpstreamToClient: %v", err)
	}

	f, err := wsframe.ReadFrame(&downstream)
	if err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}
	if f.Opcode != wsframe.OpcodeClose {
		t.Fatalf("expected close frame, got %+v", f)
	}
	if len(f.Payload) != 2 || f.Payload[0] != 0x03 || f.Payload[1] != 0xE8 {
		t.Fatalf("expected close code 1000, got payload %v", f.Payload)
	}
}

func TestIdleTimerExpiresAfterTimeout(t *testing.T) {
	idle := newIdleTimer(30 * time.Millisecond)
	defer idle.stop()

	select {
	case <-idle.expired():
		t.Fatalf("expired too early")
	case <-time.After(10 * time.Millisecond):
	}

	select {
	case <-idle.expired():
	case <-time.After(200 * time.Millisecond):
		t.Fatalf("idle timer did not expire")
	}
}

func TestIdleTimerResetPostponesExpiry(t *testing.T) {
	idle := newIdleTimer(40 * time.Millisecond)
	defer idle.stop()

	expired := idle.expired()
	stop := time.After(60 * time.Millisecond)
loop:
	for {
		select {
		case <-stop:
			break loop
		case <-time.After(10 * time.Millisecond):
			idle.reset()
		}
	}

	select {
	case <-expired:
		t.Fatalf("timer expired despite resets")
	default:
	}
}
