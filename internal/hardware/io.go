package hardware

import (
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"
	"unsafe"

	"github.com/warthog618/go-gpiocdev"
	"golang.org/x/sys/unix"

	"speed-service/internal/logger"
)

const (
	EV_SYN = 0x00
	EV_KEY = 0x01

	KEY_1 = 2 // traffic
	KEY_2 = 3 // traffic_clear
	KEY_3 = 4 // weather_rainy
	KEY_4 = 5 // weather_clear
	KEY_5 = 6 // slippery_road
	KEY_6 = 7 // slippery_road_clear
	KEY_7 = 8 // emergency_turbo

	inputEventSize = 16
	eviocgkey128   = 0x80804518 // EVIOCGKEY(128)
)

var ErrShortEvent = errors.New("incomplete input event")

type InputEvent struct {
	Sec   int32
	Usec  int32
	Type  uint16
	Code  uint16
	Value int32
}

// DecodeInputEvent decodes one input_event record as laid out on the
// 32-bit target (two int32 timeval fields).
func DecodeInputEvent(buf []byte) (InputEvent, error) {
	if len(buf) != inputEventSize {
		return InputEvent{}, fmt.Errorf("%w: got %d bytes, expected %d", ErrShortEvent, len(buf), inputEventSize)
	}
	return InputEvent{
		Sec:   int32(binary.LittleEndian.Uint32(buf[0:4])),
		Usec:  int32(binary.LittleEndian.Uint32(buf[4:8])),
		Type:  binary.LittleEndian.Uint16(buf[8:10]),
		Code:  binary.LittleEndian.Uint16(buf[10:12]),
		Value: int32(binary.LittleEndian.Uint32(buf[12:16])),
	}, nil
}

type InputCallback func(channel string, value bool) error

type LinuxHardwareIO struct {
	logger          *logger.Logger
	inputDevicePath string
	inputFile       *os.File
	chips           map[int]*gpiocdev.Chip
	lines           map[string]*gpiocdev.Line
	inputCallbacks  map[string]InputCallback
	mu              sync.RWMutex
	stopChan        chan struct{}
	activeKeys      map[uint16]bool
}

func NewLinuxHardwareIO(inputDevicePath string, l *logger.Logger) *LinuxHardwareIO {
	if inputDevicePath == "" {
		inputDevicePath = GpioKeysInput
	}
	return &LinuxHardwareIO{
		logger:          l,
		inputDevicePath: inputDevicePath,
		chips:           make(map[int]*gpiocdev.Chip),
		lines:           make(map[string]*gpiocdev.Line),
		inputCallbacks:  make(map[string]InputCallback),
		stopChan:        make(chan struct{}),
		activeKeys:      make(map[uint16]bool),
	}
}

func (io *LinuxHardwareIO) Initialize() error {
	io.logger.Infof("Initializing hardware IO")

	for name, mapping := range DoMappings {
		chip, ok := io.chips[mapping.Chip]
		if !ok {
			var err error
			chip, err = gpiocdev.NewChip(fmt.Sprintf("gpiochip%d", mapping.Chip))
			if err != nil {
				return fmt.Errorf("failed to open GPIO chip %d: %w", mapping.Chip, err)
			}
			io.chips[mapping.Chip] = chip
		}

		line, err := chip.RequestLine(mapping.Line,
			gpiocdev.AsOutput(0),
			gpiocdev.WithConsumer(Consumer))
		if err != nil {
			return fmt.Errorf("failed to request GPIO line %d: %w", mapping.Line, err)
		}

		io.lines[name] = line
		io.logger.Debugf("Configured DO %s: chip=%d, line=%d", name, mapping.Chip, mapping.Line)
	}

	io.logger.Infof("Opening input device: %s", io.inputDevicePath)
	var err error
	io.inputFile, err = os.OpenFile(io.inputDevicePath, os.O_RDONLY, 0)
	if err != nil {
		return fmt.Errorf("failed to open input device %s: %w", io.inputDevicePath, err)
	}

	if err := io.readInitialState(); err != nil {
		io.logger.Warnf("Failed to read initial input states: %v", err)
	}

	go io.monitorInputs()

	return nil
}

// readInitialState records keys already held at startup. They are not
// replayed as events; a sensor must report a fresh edge.
func (io *LinuxHardwareIO) readInitialState() error {
	buffer := make([]byte, 128)
	_, _, errno := unix.Syscall(
		unix.SYS_IOCTL,
		io.inputFile.Fd(),
		uintptr(eviocgkey128),
		uintptr(unsafe.Pointer(&buffer[0])),
	)
	if errno != 0 {
		return fmt.Errorf("EVIOCGKEY ioctl failed: %v", errno)
	}

	io.mu.Lock()
	defer io.mu.Unlock()

	for _, code := range []uint16{KEY_1, KEY_2, KEY_3, KEY_4, KEY_5, KEY_6, KEY_7} {
		if buffer[code/8]&(1<<(code%8)) != 0 {
			io.activeKeys[code] = true
			io.logger.Infof("Initial state: %s (code %d) is asserted", MapKeycode(code), code)
		}
	}
	return nil
}

func (io *LinuxHardwareIO) monitorInputs() {
	buffer := make([]byte, inputEventSize)
	io.logger.Debugf("Starting input event monitoring")

	for {
		select {
		case <-io.stopChan:
			io.logger.Infof("Stopping input monitoring")
			return
		default:
		}

		n, err := io.inputFile.Read(buffer)
		if err != nil {
			select {
			case <-io.stopChan:
				return
			default:
			}
			io.logger.Warnf("Error reading input: %v", err)
			time.Sleep(100 * time.Millisecond)
			continue
		}

		event, err := DecodeInputEvent(buffer[:n])
		if err != nil {
			io.logger.Warnf("%v", err)
			continue
		}
		if event.Type == EV_KEY {
			io.handleKeyEvent(event)
		}
	}
}

func (io *LinuxHardwareIO) handleKeyEvent(event InputEvent) {
	channel := MapKeycode(event.Code)
	io.logger.Debugf("Key event: code=%d channel=%q value=%d", event.Code, channel, event.Value)

	io.mu.Lock()
	if event.Value == 0 {
		delete(io.activeKeys, event.Code)
	} else {
		io.activeKeys[event.Code] = true
	}
	io.mu.Unlock()

	// Only key press (1) and release (0); 2 is autorepeat
	if event.Value > 1 {
		return
	}
	if channel == "" {
		io.logger.Debugf("Unknown key code: %d", event.Code)
		return
	}

	io.mu.RLock()
	callback, exists := io.inputCallbacks[channel]
	io.mu.RUnlock()

	if !exists {
		io.logger.Debugf("No callback registered for channel: %s", channel)
		return
	}
	if err := callback(channel, event.Value == 1); err != nil {
		io.logger.Warnf("Error in callback for %s: %v", channel, err)
	}
}

func MapKeycode(code uint16) string {
	switch code {
	case KEY_1:
		return ChannelTraffic
	case KEY_2:
		return ChannelTrafficClear
	case KEY_3:
		return ChannelWeatherRainy
	case KEY_4:
		return ChannelWeatherClear
	case KEY_5:
		return ChannelSlipperyRoad
	case KEY_6:
		return ChannelSlipperyRoadClear
	case KEY_7:
		return ChannelEmergencyTurbo
	default:
		return ""
	}
}

func (io *LinuxHardwareIO) RegisterInputCallback(channel string, callback InputCallback) {
	io.mu.Lock()
	defer io.mu.Unlock()
	io.inputCallbacks[channel] = callback
	io.logger.Debugf("Registered callback for channel: %s", channel)
}

func (io *LinuxHardwareIO) WriteDigitalOutput(channel string, value bool) error {
	io.mu.RLock()
	line, ok := io.lines[channel]
	io.mu.RUnlock()

	if !ok {
		return fmt.Errorf("unknown digital output channel: %s", channel)
	}

	val := 0
	if value {
		val = 1
	}
	if err := line.SetValue(val); err != nil {
		return fmt.Errorf("failed to set DO %s=%v: %w", channel, value, err)
	}

	io.logger.Debugf("Set DO %s=%v", channel, value)
	return nil
}

func (io *LinuxHardwareIO) Cleanup() {
	close(io.stopChan)

	io.mu.Lock()
	defer io.mu.Unlock()

	io.logger.Infof("Cleaning up hardware resources")

	if io.inputFile != nil {
		io.inputFile.Close()
	}
	for name, line := range io.lines {
		line.Close()
		io.logger.Debugf("Closed GPIO line for %s", name)
	}
	for id, chip := range io.chips {
		chip.Close()
		io.logger.Debugf("Closed GPIO chip %d", id)
	}
	io.logger.Infof("Hardware cleanup complete")
}
