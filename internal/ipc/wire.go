// Package ipc implements the command pipe and Update Channel as
// newline-delimited JSON over the Collector Supervisor subprocess's
// stdin/stdout. Earlier collector designs in this space have signaled
// shutdown with a bare "!QUIT!" token over a multiprocessing pipe; this
// one gives every message an explicit "type" discriminator instead, in
// the same encoding/json style used for wire payloads elsewhere in this
// tree.
package ipc

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/lcalzada-xor/capwatch/internal/core/domain"
	"github.com/lcalzada-xor/capwatch/internal/core/ports"
)

// wireCommand is the on-wire form of a domain.Command.
type wireCommand struct {
	Type       string `json:"type"`
	TargetSSID string `json:"target_ssid,omitempty"`
	Interface  string `json:"interface,omitempty"`
	Mode       string `json:"mode,omitempty"`
}

var commandNames = map[domain.Command]string{
	domain.CmdConfigure: "configure",
	domain.CmdRun:       "run",
	domain.CmdStop:      "stop",
	domain.CmdView:      "view",
	domain.CmdQuit:      "quit",
}

var commandValues = func() map[string]domain.Command {
	m := make(map[string]domain.Command, len(commandNames))
	for k, v := range commandNames {
		m[v] = k
	}
	return m
}()

// wireEvent is the on-wire form of a domain.Event.
type wireEvent struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id,omitempty"`
	BSSID   string `json:"bssid,omitempty"`
	RSSI    *int   `json:"rssi,omitempty"`
	Station string `json:"station,omitempty"`
	Ts      int64  `json:"ts,omitempty"`
	Channel int    `json:"channel,omitempty"`
	ErrKind string `json:"err_kind,omitempty"`
	Message string `json:"message,omitempty"`
	Count   int    `json:"count,omitempty"`
}

// CommandEncoder writes domain.Command values as newline-delimited JSON.
// Used on the Presenter side of the command pipe.
type CommandEncoder struct {
	mu sync.Mutex
	w  io.Writer
}

func NewCommandEncoder(w io.Writer) *CommandEncoder { return &CommandEncoder{w: w} }

// Send writes cfg alongside cmd when cmd is CmdConfigure; cfg is ignored
// otherwise.
func (e *CommandEncoder) Send(cmd domain.Command, cfg domain.Config) error {
	name, ok := commandNames[cmd]
	if !ok {
		return fmt.Errorf("ipc: unknown command %d", cmd)
	}
	wc := wireCommand{Type: name}
	if cmd == domain.CmdConfigure {
		wc.TargetSSID = cfg.TargetSSID
		wc.Interface = cfg.Interface
		wc.Mode = cfg.Mode.String()
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	enc := json.NewEncoder(e.w)
	return enc.Encode(wc)
}

// CommandDecoder implements ports.CommandSource, reading one JSON object
// per line from the Supervisor side of the command pipe.
type CommandDecoder struct {
	mu      sync.Mutex
	scanner *bufio.Scanner
}

func NewCommandDecoder(r io.Reader) *CommandDecoder {
	return &CommandDecoder{scanner: bufio.NewScanner(r)}
}

var _ ports.CommandSource = (*CommandDecoder)(nil)

// Recv blocks until the next line is available, ctx is done, or the
// underlying reader is exhausted/closed. A closed pipe is reported as
// io.EOF, which the Supervisor treats the same as an explicit quit
// during teardown.
func (d *CommandDecoder) Recv(ctx context.Context) (domain.Command, error) {
	type result struct {
		cmd domain.Command
		cfg domain.Config
		err error
	}
	out := make(chan result, 1)

	d.mu.Lock()
	go func() {
		if !d.scanner.Scan() {
			err := d.scanner.Err()
			if err == nil {
				err = io.EOF
			}
			out <- result{err: err}
			return
		}
		var wc wireCommand
		if err := json.Unmarshal(d.scanner.Bytes(), &wc); err != nil {
			out <- result{err: fmt.Errorf("ipc: decode command: %w", err)}
			return
		}
		cmd, ok := commandValues[wc.Type]
		if !ok {
			out <- result{err: fmt.Errorf("ipc: unknown command type %q", wc.Type)}
			return
		}
		out <- result{cmd: cmd}
	}()
	defer d.mu.Unlock()

	select {
	case r := <-out:
		return r.cmd, r.err
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

// EventEncoder implements ports.EventSink, writing one JSON object per
// line. Used on the Supervisor side of the event pipe.
type EventEncoder struct {
	mu sync.Mutex
	w  io.Writer
}

func NewEventEncoder(w io.Writer) *EventEncoder { return &EventEncoder{w: w} }

var _ ports.EventSink = (*EventEncoder)(nil)

func (e *EventEncoder) Send(ev domain.Event) error {
	we := wireEvent{
		Type:      string(ev.Kind),
		SessionID: ev.SessionID,
		BSSID:   ev.BSSID,
		RSSI:    ev.RSSI,
		Station: ev.Station,
		ErrKind: string(ev.ErrKind),
		Message: ev.Message,
		Count:   ev.Count,
	}
	if ev.Kind == domain.EventSTANew || ev.Kind == domain.EventSTAUpd {
		we.BSSID = ev.StaInfo.BSSID
		we.Ts = ev.StaInfo.Ts
		we.Channel = ev.StaInfo.Channel
		if ev.StaInfo.RSSI != nil {
			we.RSSI = ev.StaInfo.RSSI
		}
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	enc := json.NewEncoder(e.w)
	return enc.Encode(we)
}

// EventDecoder reads events back on the Presenter side.
type EventDecoder struct {
	scanner *bufio.Scanner
}

func NewEventDecoder(r io.Reader) *EventDecoder {
	s := bufio.NewScanner(r)
	s.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	return &EventDecoder{scanner: s}
}

// Next returns the next event, or io.EOF once the pipe is closed (the
// Supervisor process has exited after teardown).
func (d *EventDecoder) Next() (domain.Event, error) {
	if !d.scanner.Scan() {
		if err := d.scanner.Err(); err != nil {
			return domain.Event{}, err
		}
		return domain.Event{}, io.EOF
	}
	var we wireEvent
	if err := json.Unmarshal(d.scanner.Bytes(), &we); err != nil {
		return domain.Event{}, fmt.Errorf("ipc: decode event: %w", err)
	}

	ev := domain.Event{
		Kind:      domain.EventKind(we.Type),
		SessionID: we.SessionID,
		BSSID:   we.BSSID,
		RSSI:    we.RSSI,
		Station: we.Station,
		ErrKind: domain.ErrKind(we.ErrKind),
		Message: we.Message,
		Count:   we.Count,
	}
	if ev.Kind == domain.EventSTANew || ev.Kind == domain.EventSTAUpd {
		ev.StaInfo = domain.StationInfo{
			BSSID:   we.BSSID,
			Ts:      we.Ts,
			Channel: we.Channel,
			RSSI:    we.RSSI,
		}
	}
	return ev, nil
}
