package radio

import (
	"errors"
	"fmt"

	"github.com/lcalzada-xor/capwatch/internal/core/domain"
	"github.com/lcalzada-xor/capwatch/internal/core/ports"
)

// BuildScanList takes the Cartesian product of the frequencies the
// adapter supports and the width tags the controller knows about,
// filtering out combinations the driver rejects with ErrInvalidArgument.
// Any other try_tune error aborts setup.
//
// The adapter is parked on the first surviving entry before this returns,
// matching "Before handing control to the Tuner, the controller parks
// the adapter on the first scan entry."
func BuildScanList(rc ports.RadioController, h ports.MonitorHandle) ([]domain.ScanEntry, error) {
	freqs, err := rc.Freqs(h)
	if err != nil {
		return nil, fmt.Errorf("radio: build scan list: %w", err)
	}

	var entries []domain.ScanEntry
	for _, f := range freqs {
		for _, w := range rc.Widths() {
			err := rc.TryTune(h, f, w)
			switch {
			case err == nil:
				entries = append(entries, domain.ScanEntry{FrequencyMHz: f, Width: w})
			case errors.Is(err, ports.ErrInvalidArgument):
				continue
			default:
				return nil, fmt.Errorf("radio: build scan list: %w", err)
			}
		}
	}

	if len(entries) == 0 {
		return nil, errors.New("radio: no scan entries accepted by driver")
	}

	// Park on the first entry. The Supervisor requires a non-empty scan
	// list before transitioning to scanning, and parking here also leaves
	// the adapter listening somewhere sane before the Tuner starts.
	if err := rc.TryTune(h, entries[0].FrequencyMHz, entries[0].Width); err != nil {
		return nil, fmt.Errorf("radio: park on %s: %w", entries[0], err)
	}

	return entries, nil
}
