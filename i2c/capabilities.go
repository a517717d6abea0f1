// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

//go:build linux

package i2c

// Functionality bits reported by the I2C_FUNCS request.
const (
	funcI2C                 = 0x00000001
	funcTenBitAddr          = 0x00000002
	funcProtocolMangling    = 0x00000004
	funcSmbusPec            = 0x00000008
	funcNostart             = 0x00000010
	funcSlave               = 0x00000020
	funcSmbusBlockProcCall  = 0x00008000
	funcSmbusQuick          = 0x00010000
	funcSmbusReadByte       = 0x00020000
	funcSmbusWriteByte      = 0x00040000
	funcSmbusReadByteData   = 0x00080000
	funcSmbusWriteByteData  = 0x00100000
	funcSmbusReadWordData   = 0x00200000
	funcSmbusWriteWordData  = 0x00400000
	funcSmbusProcCall       = 0x00800000
	funcSmbusReadBlockData  = 0x01000000
	funcSmbusWriteBlockData = 0x02000000
	funcSmbusReadI2CBlock   = 0x04000000
	funcSmbusWriteI2CBlock  = 0x08000000
	funcSmbusHostNotify     = 0x10000000
)

// Capabilities is the feature set the bus driver advertises. The BCM283x
// i2c driver notably lacks SMBus quick commands and block reads, which the
// SMBus operations check before issuing a transaction.
type Capabilities uint64

// I2C reports support for plain I2C transactions.
func (c Capabilities) I2C() bool { return c&funcI2C != 0 }

// TenBitAddresses reports support for 10-bit slave addressing.
func (c Capabilities) TenBitAddresses() bool { return c&funcTenBitAddr != 0 }

// ProtocolMangling reports support for non-standard bus behavior.
func (c Capabilities) ProtocolMangling() bool { return c&funcProtocolMangling != 0 }

// SmbusPec reports support for packet error checking.
func (c Capabilities) SmbusPec() bool { return c&funcSmbusPec != 0 }

// Nostart reports support for repeated-start-free segments.
func (c Capabilities) Nostart() bool { return c&funcNostart != 0 }

// Slave reports support for acting as a slave device.
func (c Capabilities) Slave() bool { return c&funcSlave != 0 }

// SmbusQuick reports support for SMBus quick commands.
func (c Capabilities) SmbusQuick() bool { return c&funcSmbusQuick != 0 }

// SmbusReceiveByte reports support for SMBus receive byte.
func (c Capabilities) SmbusReceiveByte() bool { return c&funcSmbusReadByte != 0 }

// SmbusSendByte reports support for SMBus send byte.
func (c Capabilities) SmbusSendByte() bool { return c&funcSmbusWriteByte != 0 }

// SmbusReadByte reports support for SMBus read byte.
func (c Capabilities) SmbusReadByte() bool { return c&funcSmbusReadByteData != 0 }

// SmbusWriteByte reports support for SMBus write byte.
func (c Capabilities) SmbusWriteByte() bool { return c&funcSmbusWriteByteData != 0 }

// SmbusReadWord reports support for SMBus read word.
func (c Capabilities) SmbusReadWord() bool { return c&funcSmbusReadWordData != 0 }

// SmbusWriteWord reports support for SMBus write word.
func (c Capabilities) SmbusWriteWord() bool { return c&funcSmbusWriteWordData != 0 }

// SmbusProcessCall reports support for SMBus process calls.
func (c Capabilities) SmbusProcessCall() bool { return c&funcSmbusProcCall != 0 }

// SmbusBlockProcessCall reports support for SMBus block process calls.
func (c Capabilities) SmbusBlockProcessCall() bool { return c&funcSmbusBlockProcCall != 0 }

// SmbusBlockRead reports support for SMBus block reads.
func (c Capabilities) SmbusBlockRead() bool { return c&funcSmbusReadBlockData != 0 }

// SmbusBlockWrite reports support for SMBus block writes.
func (c Capabilities) SmbusBlockWrite() bool { return c&funcSmbusWriteBlockData != 0 }

// I2CBlockRead reports support for I2C block reads.
func (c Capabilities) I2CBlockRead() bool { return c&funcSmbusReadI2CBlock != 0 }

// I2CBlockWrite reports support for I2C block writes.
func (c Capabilities) I2CBlockWrite() bool { return c&funcSmbusWriteI2CBlock != 0 }

// SmbusHostNotify reports support for SMBus host notify.
func (c Capabilities) SmbusHostNotify() bool { return c&funcSmbusHostNotify != 0 }
