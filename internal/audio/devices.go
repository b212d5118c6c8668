package audio

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// alsaPCMList is the kernel's list of PCM devices.
const alsaPCMList = "/proc/asound/pcm"

// Device is a capture device the operator can feed into stdin.
type Device struct {
	// Index is the position in the listing.
	Index int
	// ID is the ALSA hardware id, e.g. "hw:0,0".
	ID string
	// Name is the human readable device name.
	Name string
}

// String renders the device the way the devices command prints it.
func (d Device) String() string {
	return fmt.Sprintf("%d\t- %s (%s)", d.Index, d.Name, d.ID)
}

// ListDevices returns every ALSA device with a capture substream.
func ListDevices() ([]Device, error) {
	f, err := os.Open(alsaPCMList)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSourceUnavailable, err)
	}
	defer f.Close()

	return ParseDevices(f)
}

// ParseDevices parses /proc/asound/pcm content, lines shaped like
// "00-01: ALC892 Digital : ALC892 Digital : playback 1 : capture 1".
func ParseDevices(r io.Reader) ([]Device, error) {
	var (
		devices []Device
		scanner = bufio.NewScanner(r)
	)

	for scanner.Scan() {
		fields := strings.Split(scanner.Text(), ":")
		if len(fields) < 3 {
			continue
		}

		if !hasCapture(fields[3:]) {
			continue
		}

		card, device, ok := strings.Cut(strings.TrimSpace(fields[0]), "-")
		if !ok {
			continue
		}

		cardIndex, err := strconv.Atoi(card)
		if err != nil {
			continue
		}

		deviceIndex, err := strconv.Atoi(device)
		if err != nil {
			continue
		}

		devices = append(devices, Device{
			Index: len(devices),
			ID:    fmt.Sprintf("hw:%d,%d", cardIndex, deviceIndex),
			Name:  strings.TrimSpace(fields[1]),
		})
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan devices: %w", err)
	}

	return devices, nil
}

func hasCapture(capabilities []string) bool {
	for _, c := range capabilities {
		if strings.HasPrefix(strings.TrimSpace(c), "capture") {
			return true
		}
	}

	return false
}
