package pci

import "fmt"

type DeviceClass uint16

const (
	Undefined           DeviceClass = 0x0000
	Storage_SCSI        DeviceClass = 0x0100
	Storage_SATA        DeviceClass = 0x0106
	Storage_NVM         DeviceClass = 0x0108
	Storage_Other       DeviceClass = 0x0180
	Network_Ethernet    DeviceClass = 0x0200
	Network_Other       DeviceClass = 0x0280
	Display_VGA         DeviceClass = 0x0300
	Display_Other       DeviceClass = 0x0380
	Multimedia_Audio    DeviceClass = 0x0401
	Bridge_Host         DeviceClass = 0x0600
	Bridge_PCI          DeviceClass = 0x0604
	Bridge_Other        DeviceClass = 0x0680
	Communication_Other DeviceClass = 0x0780
	System_SDHCI        DeviceClass = 0x0805
	Serial_USB          DeviceClass = 0x0c03
	Wireless_RF         DeviceClass = 0x0d10
	Wireless_Other      DeviceClass = 0x0d80
)

var classNames = map[DeviceClass]string{
	Undefined:           "undefined",
	Storage_SCSI:        "scsi storage",
	Storage_SATA:        "sata storage",
	Storage_NVM:         "non-volatile memory",
	Storage_Other:       "storage",
	Network_Ethernet:    "ethernet",
	Network_Other:       "network",
	Display_VGA:         "vga display",
	Display_Other:       "display",
	Multimedia_Audio:    "audio",
	Bridge_Host:         "host bridge",
	Bridge_PCI:          "pci bridge",
	Bridge_Other:        "bridge",
	System_SDHCI:        "sd host",
	Serial_USB:          "usb",
	Wireless_Other:      "wireless",
	Wireless_RF:         "rf controller",
	Communication_Other: "communication",
}

func (c DeviceClass) String() string {
	if s, found := classNames[c]; found {
		return s
	}
	return fmt.Sprintf("class 0x%04x", uint16(c))
}

// ClassRevision is the register at ClassRevisionReg.
type ClassRevision uint32

func (r ClassRevision) Class() DeviceClass { return DeviceClass(r >> 16) }
func (r ClassRevision) Interface() uint8   { return uint8(r >> 8) }
func (r ClassRevision) Revision() uint8    { return uint8(r) }

// Word returns the register value with class c and zero interface and
// revision.
func (c DeviceClass) Word() uint32 { return uint32(c) << 16 }

const (
	Broadcom VendorID = 0x14e4
	Intel    VendorID = 0x8086
	Rockchip VendorID = 0x1d87
)
