// Package radio implements the Radio Controller: it reconfigures a
// wireless adapter into monitor mode, enumerates supported (frequency,
// width) pairs, drives tuning, and restores the adapter on shutdown, by
// shelling out to the `iw`/`ip` command-line tools rather than binding
// netlink directly.
package radio

import (
	"bufio"
	"bytes"
	"fmt"
	"log"
	"os/exec"
	"regexp"
	"strconv"
	"strings"

	"github.com/lcalzada-xor/capwatch/internal/core/ports"
)

// MonitorInterfaceName is the name the Supervisor gives the monitor
// interface it creates.
const MonitorInterfaceName = "cap8"

// Widths this controller exposes as channel-width tags. try_tune filters
// out combinations the driver rejects, so an overly generous list here is
// harmless — see TryTune.
var supportedWidths = []string{"20", "40", "80"}

// CommandExecutor abstracts process execution so tests can substitute a
// fake without invoking real `iw`/`ip` binaries.
type CommandExecutor interface {
	Execute(name string, args ...string) ([]byte, error)
}

// SystemCommandExecutor runs commands via os/exec.
type SystemCommandExecutor struct{}

func (SystemCommandExecutor) Execute(name string, args ...string) ([]byte, error) {
	cmd := exec.Command(name, args...)
	return cmd.CombinedOutput()
}

// Controller implements ports.RadioController against Linux `iw`/`ip`.
type Controller struct {
	exec CommandExecutor
}

// New creates a Controller using the real system command executor.
func New() *Controller {
	return &Controller{exec: SystemCommandExecutor{}}
}

// NewWithExecutor is used by tests to inject a fake CommandExecutor.
func NewWithExecutor(e CommandExecutor) *Controller {
	return &Controller{exec: e}
}

var _ ports.RadioController = (*Controller)(nil)

// Probe maps dev to its phy, reads the phy's supported frequency list,
// and records the interface's current (pre-monitor) mode.
func (c *Controller) Probe(dev string) (ports.DeviceInfo, error) {
	phy, mode, err := c.ifaceInfo(dev)
	if err != nil {
		return ports.DeviceInfo{}, fmt.Errorf("radio: probe %s: %w", dev, err)
	}

	freqs, err := c.phyFrequencies(phy)
	if err != nil {
		return ports.DeviceInfo{}, fmt.Errorf("radio: probe %s: %w", dev, err)
	}

	return ports.DeviceInfo{Name: dev, OriginalMode: mode, Frequencies: freqs}, nil
}

// ifaceInfo returns the phy identifier ("phy0") and current type
// ("managed") for dev, scraped from `iw dev`.
func (c *Controller) ifaceInfo(dev string) (phy, mode string, err error) {
	out, err := c.exec.Execute("iw", "dev")
	if err != nil {
		return "", "", err
	}

	scanner := bufio.NewScanner(bytes.NewReader(out))
	currentPhy := ""
	inDev := false
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch {
		case strings.HasPrefix(line, "phy#"):
			currentPhy = strings.Replace(line, "#", "", 1)
			inDev = false
		case strings.HasPrefix(line, "Interface "+dev):
			phy = currentPhy
			inDev = true
		case inDev && strings.HasPrefix(line, "type "):
			mode = strings.TrimPrefix(line, "type ")
			return phy, mode, nil
		case strings.HasPrefix(line, "Interface ") && inDev:
			inDev = false
		}
	}
	if phy == "" {
		return "", "", fmt.Errorf("interface %s not found in iw dev output", dev)
	}
	// No explicit "type" line observed (some iw versions omit it for
	// managed, the default); fall back to managed.
	return phy, "managed", nil
}

var reChannel = regexp.MustCompile(`^\*\s+(\d+)\s+MHz`)

// phyFrequencies parses `iw phy <phy> info` for the Frequencies: block.
func (c *Controller) phyFrequencies(phy string) ([]int, error) {
	out, err := c.exec.Execute("iw", "phy", phy, "info")
	if err != nil {
		return nil, err
	}

	var freqs []int
	scanner := bufio.NewScanner(bytes.NewReader(out))
	inFrequencies := false
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "Frequencies:" {
			inFrequencies = true
			continue
		}
		if !inFrequencies {
			continue
		}
		if !strings.HasPrefix(line, "*") {
			inFrequencies = false
			continue
		}
		if strings.Contains(line, "(disabled)") {
			continue
		}
		if m := reChannel.FindStringSubmatch(line); m != nil {
			mhz, convErr := strconv.Atoi(m[1])
			if convErr == nil {
				freqs = append(freqs, mhz)
			}
		}
	}
	if len(freqs) == 0 {
		return nil, fmt.Errorf("no supported frequencies reported for %s", phy)
	}
	return freqs, nil
}

// Widths returns the channel-width tags this controller will attempt
// during scan-list construction; try_tune prunes the ones the driver
// rejects.
func (c *Controller) Widths() []string {
	return append([]string(nil), supportedWidths...)
}

// ToMonitor converts dev into monitor mode via a freshly created
// interface (MonitorInterfaceName), deleting dev itself first. Other
// interfaces on the same phy are left in place.
func (c *Controller) ToMonitor(dev string) (ports.MonitorHandle, error) {
	phy, _, err := c.ifaceInfo(dev)
	if err != nil {
		return ports.MonitorHandle{}, fmt.Errorf("radio: to_monitor %s: %w", dev, err)
	}

	if err := c.run("ip", "link", "set", dev, "down"); err != nil {
		return ports.MonitorHandle{}, fmt.Errorf("radio: to_monitor %s: %w", dev, err)
	}
	if err := c.run("iw", "dev", dev, "del"); err != nil {
		log.Printf("radio: could not remove sibling interface %s (continuing): %v", dev, err)
	}
	if err := c.run("iw", "phy", phy, "interface", "add", MonitorInterfaceName, "type", "monitor"); err != nil {
		return ports.MonitorHandle{}, fmt.Errorf("radio: to_monitor %s: create %s: %w", dev, MonitorInterfaceName, err)
	}
	if err := c.run("ip", "link", "set", MonitorInterfaceName, "up"); err != nil {
		return ports.MonitorHandle{}, fmt.Errorf("radio: to_monitor %s: bring up %s: %w", dev, MonitorInterfaceName, err)
	}

	return ports.MonitorHandle{Name: MonitorInterfaceName, PhysDevice: phy}, nil
}

// Freqs re-reads the phy's supported frequency list for the monitor
// handle's physical device.
func (c *Controller) Freqs(h ports.MonitorHandle) ([]int, error) {
	return c.phyFrequencies(h.PhysDevice)
}

// TryTune attempts to set frequency+width on the monitor interface. A
// driver rejection surfaces as ports.ErrInvalidArgument so the caller
// (scan-list construction, or the Tuner at runtime) can treat it as
// skip-not-fatal.
func (c *Controller) TryTune(h ports.MonitorHandle, mhz int, width string) error {
	out, err := c.exec.Execute("iw", "dev", h.Name, "set", "freq", strconv.Itoa(mhz), width)
	if err == nil {
		return nil
	}
	if strings.Contains(strings.ToLower(string(out)), "invalid argument") {
		return ports.ErrInvalidArgument
	}
	return fmt.Errorf("radio: try_tune %s %dMHz/%s: %w (%s)", h.Name, mhz, width, err, string(out))
}

// Restore removes the monitor interface and re-creates originalName with
// originalMode, so that on clean shutdown the adapter is left in its
// original mode and every interface the Supervisor created is removed.
func (c *Controller) Restore(h ports.MonitorHandle, originalName, originalMode string) error {
	var errs []string

	if err := c.run("ip", "link", "set", h.Name, "down"); err != nil {
		errs = append(errs, err.Error())
	}
	if err := c.run("iw", "dev", h.Name, "del"); err != nil {
		errs = append(errs, err.Error())
	}

	if err := c.run("iw", "phy", h.PhysDevice, "interface", "add", originalName, "type", originalMode); err != nil {
		errs = append(errs, err.Error())
	} else if err := c.run("ip", "link", "set", originalName, "up"); err != nil {
		errs = append(errs, err.Error())
	}

	if len(errs) > 0 {
		return fmt.Errorf("radio: restore %s: %s", h.PhysDevice, strings.Join(errs, "; "))
	}
	return nil
}

func (c *Controller) run(name string, args ...string) error {
	out, err := c.exec.Execute(name, args...)
	if err != nil {
		return fmt.Errorf("%s %v: %w (%s)", name, args, err, strings.TrimSpace(string(out)))
	}
	return nil
}
