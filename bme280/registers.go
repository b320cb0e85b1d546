package bme280

// Bosch BME280 register map.
// See: https://www.bosch-sensortec.com/media/boschsensortec/downloads/datasheets/bst-bme280-ds002.pdf
const (
	regCalib00  byte = 0x88 // 0x88..0xA1, dig_T1..dig_H1
	regChipID   byte = 0xD0
	regReset    byte = 0xE0
	regCalib26  byte = 0xE1 // 0xE1..0xE7, dig_H2..dig_H6
	regCtrlHum  byte = 0xF2
	regStatus   byte = 0xF3
	regCtrlMeas byte = 0xF4
	regConfig   byte = 0xF5
	regData     byte = 0xF7 // press_msb..hum_lsb burst
)

const (
	calib00Len = 26
	calib26Len = 7
	dataLen    = 8
)

const (
	chipID       byte = 0x60
	softResetCmd byte = 0xB6

	statusImUpdate  byte = 0x01
	statusMeasuring byte = 0x08
)

// Exported register addresses for tools and simulators.
const (
	RegCalib00  = regCalib00
	RegChipID   = regChipID
	RegReset    = regReset
	RegCalib26  = regCalib26
	RegCtrlHum  = regCtrlHum
	RegStatus   = regStatus
	RegCtrlMeas = regCtrlMeas
	RegConfig   = regConfig
	RegData     = regData

	ChipID       = chipID
	SoftResetCmd = softResetCmd
)
