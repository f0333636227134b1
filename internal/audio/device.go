// SPDX-License-Identifier: MIT
package audio

import "time"

// Device represents an audio device
type Device struct {
	ID                int
	Name              string
	HostAPI           string
	MaxInputChannels  int
	MaxOutputChannels int
	DefaultSampleRate float64
	LowLatency        time.Duration // Input latency for input devices, output latency otherwise.
	HighLatency       time.Duration
	DefaultInput      bool
	DefaultOutput     bool
}

// Kind describes the directions the device supports.
func (d Device) Kind() string {
	switch {
	case d.MaxInputChannels > 0 && d.MaxOutputChannels > 0:
		return "Input/Output"
	case d.MaxInputChannels > 0:
		return "Input"
	case d.MaxOutputChannels > 0:
		return "Output"
	default:
		return "Unavailable"
	}
}

// HostDevices returns all devices PortAudio reports. PortAudio must be
// initialized.
func HostDevices() ([]Device, error) {
	infos, err := paDevicesFunc()
	if err != nil {
		return nil, err
	}

	var defaultIn, defaultOut string
	if d, err := paLibDefaultInputDeviceFunc(); err == nil && d != nil {
		defaultIn = d.Name
	}
	if d, err := paLibDefaultOutputDeviceFunc(); err == nil && d != nil {
		defaultOut = d.Name
	}

	devices := make([]Device, len(infos))
	for i, info := range infos {
		d := Device{
			ID:                i,
			Name:              info.Name,
			MaxInputChannels:  info.MaxInputChannels,
			MaxOutputChannels: info.MaxOutputChannels,
			DefaultSampleRate: info.DefaultSampleRate,
			LowLatency:        info.DefaultLowOutputLatency,
			HighLatency:       info.DefaultHighOutputLatency,
			DefaultInput:      defaultIn != "" && info.Name == defaultIn && info.MaxInputChannels > 0,
			DefaultOutput:     defaultOut != "" && info.Name == defaultOut && info.MaxOutputChannels > 0,
		}
		if info.MaxInputChannels > 0 {
			d.LowLatency = info.DefaultLowInputLatency
			d.HighLatency = info.DefaultHighInputLatency
		}
		if info.HostApi != nil {
			d.HostAPI = info.HostApi.Name
		}
		devices[i] = d
	}

	return devices, nil
}

// InputDevices filters HostDevices down to capture-capable devices.
func InputDevices() ([]Device, error) {
	all, err := HostDevices()
	if err != nil {
		return nil, err
	}
	inputs := make([]Device, 0, len(all))
	for _, d := range all {
		if d.MaxInputChannels > 0 {
			inputs = append(inputs, d)
		}
	}
	return inputs, nil
}
