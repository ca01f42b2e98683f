package malgo

import (
	"encoding/hex"
	"runtime"
	"strings"

	"github.com/gen2brain/malgo"

	"github.com/tphakala/batrec/internal/audiocore"
	"github.com/tphakala/batrec/internal/errors"
)

// DeviceInfo describes a capture device.
type DeviceInfo struct {
	Index     int
	Name      string
	ID        string
	IsDefault bool
}

// getBackend returns the miniaudio backend for the current platform
func getBackend() malgo.Backend {
	switch runtime.GOOS {
	case "linux":
		return malgo.BackendAlsa
	case "windows":
		return malgo.BackendWasapi
	case "darwin":
		return malgo.BackendCoreaudio
	default:
		return malgo.BackendNull
	}
}

func initContext() (*malgo.AllocatedContext, error) {
	ctx, err := malgo.InitContext([]malgo.Backend{getBackend()}, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, errors.New(err).
			Component(componentName).
			Category(errors.CategoryHardware).
			Context("operation", "init_context").
			Context("os", runtime.GOOS).
			Build()
	}
	return ctx, nil
}

func freeContext(ctx *malgo.AllocatedContext) {
	_ = ctx.Uninit()
	ctx.Free()
}

func describe(infos []malgo.DeviceInfo) []DeviceInfo {
	devices := make([]DeviceInfo, 0, len(infos))
	for i := range infos {
		name := infos[i].Name()
		if strings.Contains(name, "Discard all samples") {
			continue
		}
		id := infos[i].ID.String()
		if decoded, err := hexToASCII(id); err == nil {
			id = decoded
		}
		devices = append(devices, DeviceInfo{
			Index:     i,
			Name:      name,
			ID:        id,
			IsDefault: infos[i].IsDefault == 1,
		})
	}
	return devices
}

// EnumerateDevices returns the available capture devices
func EnumerateDevices() ([]DeviceInfo, error) {
	ctx, err := initContext()
	if err != nil {
		return nil, err
	}
	defer freeContext(ctx)

	infos, err := ctx.Devices(malgo.Capture)
	if err != nil {
		return nil, errors.New(err).
			Component(componentName).
			Category(errors.CategoryHardware).
			Context("operation", "enumerate_devices").
			Build()
	}
	return describe(infos), nil
}

// Probe resolves the first device matching names. Used when a run starts.
func Probe(names []string) (DeviceInfo, error) {
	devices, err := EnumerateDevices()
	if err != nil {
		return DeviceInfo{}, err
	}
	return SelectDevice(devices, names)
}

// SelectDevice picks a device for the configured names, tried in order. For each
// name an exact name match wins over a decoded ID match, which wins over a
// partial name match. An empty list or "default" selects the system default.
func SelectDevice(devices []DeviceInfo, names []string) (DeviceInfo, error) {
	if len(devices) == 0 {
		return DeviceInfo{}, audiocore.NoDeviceError("card")
	}

	if len(names) == 0 || (len(names) == 1 && (names[0] == "" || names[0] == "default")) {
		for _, d := range devices {
			if d.IsDefault {
				return d, nil
			}
		}
		return devices[0], nil
	}

	for _, name := range names {
		if name == "" {
			continue
		}
		for _, d := range devices {
			if d.Name == name {
				return d, nil
			}
		}
		for _, d := range devices {
			if d.ID == name {
				return d, nil
			}
		}
		for _, d := range devices {
			if strings.Contains(d.Name, name) {
				return d, nil
			}
		}
	}

	return DeviceInfo{}, audiocore.NoDeviceError(names...)
}

// hexToASCII converts a hexadecimal device ID to its readable form (":1,0" on ALSA)
func hexToASCII(hexStr string) (string, error) {
	b, err := hex.DecodeString(hexStr)
	if err != nil {
		return "", err
	}
	return strings.TrimRight(string(b), "\x00"), nil
}
