// SPDX-License-Identifier: MIT
package tui

import (
	"fmt"
	"slices"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"spectrum/internal/audio"
)

var (
	titleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFFDF5")).
			Background(lipgloss.Color("#25A065")).
			Padding(0, 1).
			Bold(true)

	infoStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFFDF5"))

	highlightStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#25A065")).
			Bold(true)

	mutedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#7D7D7D"))
)

// Standard capture rates offered next to the device default.
var standardRates = []float64{44100, 48000, 88200, 96000}

var (
	keyQuit  = key.NewBinding(key.WithKeys("q", "ctrl+c"))
	keyUp    = key.NewBinding(key.WithKeys("up", "k"))
	keyDown  = key.NewBinding(key.WithKeys("down", "j"))
	keyEnter = key.NewBinding(key.WithKeys("enter"))
	keyBack  = key.NewBinding(key.WithKeys("esc"))
)

// headerPad is the number of lines taken by the title and help.
const headerPad = 4

// ScreenType defines which screen is currently active
type ScreenType int

const (
	ListScreen ScreenType = iota
	ConfigScreen
)

// Selection is the device and rate chosen in the picker.
type Selection struct {
	DeviceID   int
	DeviceName string
	SampleRate float64
}

// DeviceListModel lists audio devices. In picker mode it only shows input
// devices and confirming a rate ends the program with a Selection.
type DeviceListModel struct {
	load   func() ([]audio.Device, error)
	picker bool

	devices       []audio.Device
	selectedIndex int
	viewport      viewport.Model
	ready         bool
	err           error
	activeScreen  ScreenType

	availableSampleRates []float64
	sampleRateIndex      int

	selection *Selection
}

type devicesMsg struct {
	devices []audio.Device
}

type errMsg struct {
	err error
}

// NewDeviceListModel creates a browser over every host device.
func NewDeviceListModel() DeviceListModel {
	return DeviceListModel{load: audio.HostDevices, activeScreen: ListScreen}
}

// NewPickerModel creates a picker over input devices.
func NewPickerModel() DeviceListModel {
	return DeviceListModel{load: audio.InputDevices, picker: true, activeScreen: ListScreen}
}

// Init loads the device list.
func (m DeviceListModel) Init() tea.Cmd {
	load := m.load
	return func() tea.Msg {
		devices, err := load()
		if err != nil {
			return errMsg{err}
		}
		return devicesMsg{devices}
	}
}

// Selection returns the confirmed choice, if any.
func (m DeviceListModel) Selection() (Selection, bool) {
	if m.selection == nil {
		return Selection{}, false
	}
	return *m.selection, true
}

func (m DeviceListModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var (
		cmd  tea.Cmd
		cmds []tea.Cmd
	)

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		if !m.ready {
			m.viewport = viewport.New(msg.Width, msg.Height-headerPad)
			m.viewport.Style = lipgloss.NewStyle()
			m.ready = true
		} else {
			m.viewport.Width = msg.Width
			m.viewport.Height = msg.Height - headerPad
		}
		m.refresh()

	case devicesMsg:
		m.devices = msg.devices
		m.selectedIndex = m.initialIndex()
		m.refresh()

	case errMsg:
		m.err = msg.err

	case tea.KeyMsg:
		if m.err != nil || key.Matches(msg, keyQuit) {
			return m, tea.Quit
		}

		switch m.activeScreen {
		case ListScreen:
			switch {
			case key.Matches(msg, keyUp):
				if m.selectedIndex > 0 {
					m.selectedIndex--
				}
			case key.Matches(msg, keyDown):
				if m.selectedIndex < len(m.devices)-1 {
					m.selectedIndex++
				}
			case key.Matches(msg, keyEnter):
				if len(m.devices) > 0 {
					m.openConfig()
				}
			}
		case ConfigScreen:
			switch {
			case key.Matches(msg, keyBack):
				m.activeScreen = ListScreen
			case key.Matches(msg, keyUp):
				if m.sampleRateIndex > 0 {
					m.sampleRateIndex--
				}
			case key.Matches(msg, keyDown):
				if m.sampleRateIndex < len(m.availableSampleRates)-1 {
					m.sampleRateIndex++
				}
			case key.Matches(msg, keyEnter):
				if m.picker {
					d := m.devices[m.selectedIndex]
					m.selection = &Selection{
						DeviceID:   d.ID,
						DeviceName: d.Name,
						SampleRate: m.availableSampleRates[m.sampleRateIndex],
					}
					return m, tea.Quit
				}
			}
		}
		m.refresh()
	}

	m.viewport, cmd = m.viewport.Update(msg)
	cmds = append(cmds, cmd)

	return m, tea.Batch(cmds...)
}

// initialIndex starts on the default device of the listed direction.
func (m DeviceListModel) initialIndex() int {
	for i, d := range m.devices {
		if d.DefaultInput {
			return i
		}
	}
	return 0
}

// openConfig switches to the rate screen with the device default selected.
func (m *DeviceListModel) openConfig() {
	m.activeScreen = ConfigScreen
	m.availableSampleRates = sampleRates(m.devices[m.selectedIndex].DefaultSampleRate)
	m.sampleRateIndex = max(0, slices.Index(m.availableSampleRates, m.devices[m.selectedIndex].DefaultSampleRate))
}

// sampleRates returns the standard rates plus the device default, sorted.
func sampleRates(deviceDefault float64) []float64 {
	rates := slices.Clone(standardRates)
	if deviceDefault > 0 && !slices.Contains(rates, deviceDefault) {
		rates = append(rates, deviceDefault)
		slices.Sort(rates)
	}
	return rates
}

func (m *DeviceListModel) refresh() {
	if !m.ready {
		return
	}
	if m.activeScreen == ConfigScreen {
		m.viewport.SetContent(m.renderDeviceConfig())
		return
	}
	m.viewport.SetContent(m.renderDevices())
}

// View renders the UI
func (m DeviceListModel) View() string {
	if m.err != nil {
		return fmt.Sprintf("Error: %v\n\nPress any key to exit.", m.err)
	}
	if !m.ready {
		return "Initializing..."
	}

	var title, help string
	switch {
	case m.activeScreen == ListScreen && m.picker:
		title = titleStyle.Render("Select Input Device")
		help = infoStyle.Render("↑/↓: Navigate • Enter: Choose • q: Quit")
	case m.activeScreen == ListScreen:
		title = titleStyle.Render("Audio Device List")
		help = infoStyle.Render("↑/↓: Navigate • Enter: Details • q: Quit")
	case m.picker:
		title = titleStyle.Render("Capture Sample Rate")
		help = infoStyle.Render("↑/↓: Change Value • Enter: Start • Esc: Back • q: Quit")
	default:
		title = titleStyle.Render("Device Configuration")
		help = infoStyle.Render("↑/↓: Change Value • Esc: Back • q: Quit")
	}

	return fmt.Sprintf("%s\n\n%s\n\n%s", title, m.viewport.View(), help)
}

// renderDevices formats the device list
func (m DeviceListModel) renderDevices() string {
	if len(m.devices) == 0 {
		if m.picker {
			return "No input devices found."
		}
		return "No audio devices found."
	}

	var sb strings.Builder
	for i, device := range m.devices {
		var defaults []string
		if device.DefaultInput {
			defaults = append(defaults, "default input")
		}
		if device.DefaultOutput {
			defaults = append(defaults, "default output")
		}

		deviceInfo := fmt.Sprintf("[%d] %s (%s)", device.ID, device.Name, device.Kind())
		if len(defaults) > 0 {
			deviceInfo += " " + mutedStyle.Render("["+strings.Join(defaults, ", ")+"]")
		}
		deviceInfo += "\n"
		deviceInfo += fmt.Sprintf("    Input channels: %d, Output channels: %d\n",
			device.MaxInputChannels, device.MaxOutputChannels)
		deviceInfo += fmt.Sprintf("    Default sample rate: %.0f Hz\n",
			device.DefaultSampleRate)
		if device.HostAPI != "" {
			deviceInfo += fmt.Sprintf("    Host API: %s\n", device.HostAPI)
		}

		if i == m.selectedIndex {
			deviceInfo = highlightStyle.Render(deviceInfo)
		}

		sb.WriteString(deviceInfo)
		sb.WriteString("\n")
	}

	return sb.String()
}

// renderDeviceConfig formats the device configuration screen
func (m DeviceListModel) renderDeviceConfig() string {
	var sb strings.Builder
	device := m.devices[m.selectedIndex]

	fmt.Fprintf(&sb, "Configure Device: %s\n\n", device.Name)
	fmt.Fprintf(&sb, "Latency: low %.1f ms, high %.1f ms\n\n",
		float64(device.LowLatency.Microseconds())/1000, float64(device.HighLatency.Microseconds())/1000)
	sb.WriteString("Sample Rate:\n")

	for i, rate := range m.availableSampleRates {
		marker := " "
		if i == m.sampleRateIndex {
			marker = "▶"
		}
		line := fmt.Sprintf("  %s %.0f Hz", marker, rate)
		if rate == device.DefaultSampleRate {
			line += " (default)"
		}
		line += "\n"

		if i == m.sampleRateIndex {
			line = highlightStyle.Render(line)
		}
		sb.WriteString(line)
	}

	return sb.String()
}

// StartDeviceListUI launches the Bubble Tea TUI for listing devices
func StartDeviceListUI() error {
	p := tea.NewProgram(
		NewDeviceListModel(),
		tea.WithAltScreen(),
	)
	_, err := p.Run()
	return err
}

// PickInputDevice runs the picker. ok is false when the user quit without
// choosing.
func PickInputDevice() (sel Selection, ok bool, err error) {
	p := tea.NewProgram(NewPickerModel(), tea.WithAltScreen())
	final, err := p.Run()
	if err != nil {
		return Selection{}, false, err
	}
	m, isModel := final.(DeviceListModel)
	if !isModel {
		return Selection{}, false, nil
	}
	if m.err != nil {
		return Selection{}, false, m.err
	}
	sel, ok = m.Selection()
	return sel, ok, nil
}
