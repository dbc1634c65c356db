package snmp

// Host Resources MIB (RFC 2790) and Printer MIB (RFC 3805) objects, first
// device and first marker.
const (
	oidHrDeviceStatus     = ".1.3.6.1.2.1.25.3.2.1.5.1"
	oidHrPrinterStatus    = ".1.3.6.1.2.1.25.3.5.1.1.1"
	oidHrPrinterErrorBits = ".1.3.6.1.2.1.25.3.5.1.2.1"
	oidMarkerLifeCount    = ".1.3.6.1.2.1.43.10.2.1.4.1.1"

	oidSuppliesDescription = ".1.3.6.1.2.1.43.11.1.1.6.1"
	oidSuppliesMaxCapacity = ".1.3.6.1.2.1.43.11.1.1.8.1"
	oidSuppliesLevel       = ".1.3.6.1.2.1.43.11.1.1.9.1"

	oidInputMaxCapacity  = ".1.3.6.1.2.1.43.8.2.1.9.1"
	oidInputCurrentLevel = ".1.3.6.1.2.1.43.8.2.1.10.1"
	oidInputName         = ".1.3.6.1.2.1.43.8.2.1.13.1"
)

// hrDeviceStatus values.
const (
	deviceRunning = 2
	deviceWarning = 3
	deviceDown    = 5
)

// hrPrinterStatus values.
const (
	printerIdle     = 3
	printerPrinting = 4
	printerWarmup   = 5
)

// hrPrinterDetectedErrorState bits, most significant bit of the first octet
// first.
var errorBits = []struct {
	bit     int
	message string
	fatal   bool
}{
	{0, "low paper", false},
	{1, "no paper", true},
	{2, "low toner", false},
	{3, "no toner", true},
	{4, "door open", true},
	{5, "jammed", true},
	{6, "offline", true},
	{7, "service requested", true},
	{8, "input tray missing", true},
	{9, "output tray missing", true},
	{10, "marker supply missing", true},
	{11, "output near full", false},
	{12, "output full", true},
	{13, "input tray empty", true},
	{14, "overdue preventive maintenance", false},
}
