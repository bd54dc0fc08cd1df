package sensor

import (
	"strconv"

	"github.com/gordonklaus/portaudio"

	"github.com/kennelworks/hushd/internal/types"
	"github.com/kennelworks/hushd/internal/util"
)

// ListInputDevices returns the audio input devices available to the
// microphone backend, for the dashboard device picker.
func ListInputDevices() ([]types.Device, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, util.WrapError("initialize audio subsystem", err)
	}
	defer terminateAudio()

	devices, err := portaudio.Devices()
	if err != nil {
		return nil, util.WrapError("list audio devices", err)
	}

	var result []types.Device
	for i, dev := range devices {
		if dev.MaxInputChannels < 1 {
			continue
		}
		result = append(result, types.Device{
			ID:   strconv.Itoa(i),
			Name: dev.Name,
		})
	}
	return result, nil
}
