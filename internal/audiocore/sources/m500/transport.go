package m500

import (
	"context"
	"time"

	"github.com/google/gousb"

	"github.com/tphakala/batrec/internal/errors"
)

const (
	readSize     = 0x20000
	readTimeout  = 2 * time.Second
	writeTimeout = time.Second
)

// ErrNotFound is returned by Open when no M500 is attached.
var ErrNotFound = errors.NewStd("M500 not found")

// Transport is the bulk endpoint pair of the microphone.
type Transport interface {
	// Write sends one command frame.
	Write(ctx context.Context, frame []byte) error
	// Read returns the next chunk of raw little-endian samples. Zero bytes
	// with a nil error means the device returned nothing in time.
	Read(ctx context.Context, buf []byte) (int, error)
	// Reset power-cycles the device.
	Reset() error
	Close() error
}

// Opener opens a Transport. Tests substitute a fake.
type Opener func() (Transport, error)

type usbTransport struct {
	ctx  *gousb.Context
	dev  *gousb.Device
	cfg  *gousb.Config
	intf *gousb.Interface
	in   *gousb.InEndpoint
	out  *gousb.OutEndpoint
}

// Available reports whether an M500 is attached.
func Available() bool {
	usb := gousb.NewContext()
	defer usb.Close()

	devs, err := usb.OpenDevices(func(desc *gousb.DeviceDesc) bool {
		return desc.Vendor == gousb.ID(VendorID) && desc.Product == gousb.ID(ProductID)
	})
	for _, d := range devs {
		_ = d.Close()
	}
	return err == nil && len(devs) > 0
}

// OpenUSB claims the first interface of the microphone and resolves its
// bulk endpoints.
func OpenUSB() (Transport, error) {
	t := &usbTransport{ctx: gousb.NewContext()}

	dev, err := t.ctx.OpenDeviceWithVIDPID(gousb.ID(VendorID), gousb.ID(ProductID))
	if err != nil {
		t.Close()
		return nil, usbError(err, "open_device")
	}
	if dev == nil {
		t.Close()
		return nil, errors.New(ErrNotFound).
			Component(componentName).
			Category(errors.CategoryHardware).
			Build()
	}
	t.dev = dev
	_ = dev.SetAutoDetach(true)

	if t.cfg, err = dev.Config(1); err != nil {
		t.Close()
		return nil, usbError(err, "set_configuration")
	}
	if t.intf, err = t.cfg.Interface(0, 0); err != nil {
		t.Close()
		return nil, usbError(err, "claim_interface")
	}

	for _, ep := range t.intf.Setting.Endpoints {
		switch {
		case ep.Direction == gousb.EndpointDirectionIn && t.in == nil:
			t.in, err = t.intf.InEndpoint(ep.Number)
		case ep.Direction == gousb.EndpointDirectionOut && t.out == nil:
			t.out, err = t.intf.OutEndpoint(ep.Number)
		}
		if err != nil {
			t.Close()
			return nil, usbError(err, "open_endpoint")
		}
	}
	if t.in == nil || t.out == nil {
		t.Close()
		return nil, errors.Newf("M500 endpoints missing (in=%t out=%t)", t.in != nil, t.out != nil).
			Component(componentName).
			Category(errors.CategoryProtocol).
			Build()
	}
	return t, nil
}

func (t *usbTransport) Write(ctx context.Context, frame []byte) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	if _, err := t.out.WriteContext(ctx, frame); err != nil {
		return usbError(err, "write_command")
	}
	return nil
}

func (t *usbTransport) Read(ctx context.Context, buf []byte) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, readTimeout)
	defer cancel()
	n, err := t.in.ReadContext(ctx, buf)
	if err != nil {
		if errors.Is(err, gousb.ErrorTimeout) || errors.Is(err, gousb.TransferCancelled) || errors.Is(err, context.DeadlineExceeded) {
			return n, nil
		}
		return n, usbError(err, "read_stream")
	}
	return n, nil
}

func (t *usbTransport) Reset() error {
	if t.dev == nil {
		return nil
	}
	if err := t.dev.Reset(); err != nil {
		return usbError(err, "reset")
	}
	return nil
}

// Close releases the interface, configuration, device and context in order.
func (t *usbTransport) Close() error {
	if t.intf != nil {
		t.intf.Close()
		t.intf = nil
	}
	var errs []error
	if t.cfg != nil {
		errs = append(errs, t.cfg.Close())
		t.cfg = nil
	}
	if t.dev != nil {
		errs = append(errs, t.dev.Close())
		t.dev = nil
	}
	if t.ctx != nil {
		errs = append(errs, t.ctx.Close())
		t.ctx = nil
	}
	return errors.Join(errs...)
}

func usbError(err error, op string) error {
	return errors.New(err).
		Component(componentName).
		Category(errors.CategoryHardware).
		Context("operation", op).
		Build()
}
