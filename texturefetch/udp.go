/*
 * MIT License
 *
 * Copyright (c) 2020 Nicolas JUHEL
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in all
 * copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 *
 *
 */

package texturefetch

import "sync"

// MaxImgPacketSize is the payload size of every UDP image packet except the
// last.
const MaxImgPacketSize = 1000

// udpReassembly accumulates the header packet and data packets of one UDP
// texture transfer: a slot array pre-sized to the header's total-packets
// count with an explicit received-bitmap; lastPacket is the run of the
// longest received contiguous prefix.
type udpReassembly struct {
	mu sync.Mutex

	haveHeader   bool
	codec        uint8
	totalPackets int
	fileSize     int64
	firstChunk   []byte

	packets    [][]byte
	received   []bool
	lastPacket int // index of the last packet in the contiguous received prefix, -1 if none

	badPackets int
}

func newUDPReassembly() *udpReassembly {
	return &udpReassembly{lastPacket: -1}
}

// receiveHeader records packet 0's payload: codec, total packet count,
// authoritative file size and the first data chunk. Calling it twice for the
// same transfer is ignored (duplicate header).
func (u *udpReassembly) receiveHeader(codec uint8, totalPackets int, fileSize int64, firstChunk []byte) {
	u.mu.Lock()
	defer u.mu.Unlock()

	if u.haveHeader {
		u.badPackets++
		return
	}

	u.haveHeader = true
	u.codec = codec
	u.totalPackets = totalPackets
	u.fileSize = fileSize
	u.firstChunk = append([]byte(nil), firstChunk...)
	u.packets = make([][]byte, totalPackets)
	u.received = make([]bool, totalPackets)
}

// receivePacket records packet at index (1-based packet numbers map to
// index-1 in the slot array; index 0 is reserved for the header's own first
// chunk). Duplicate or out-of-range packets are silently dropped and counted.
// Returns whether the transfer is now fully assembled.
func (u *udpReassembly) receivePacket(index int, data []byte) bool {
	u.mu.Lock()
	defer u.mu.Unlock()

	if !u.haveHeader || index < 1 || index > u.totalPackets {
		u.badPackets++
		return false
	}

	slot := index - 1
	if u.received[slot] {
		u.badPackets++
		return false
	}

	u.packets[slot] = append([]byte(nil), data...)
	u.received[slot] = true

	for u.lastPacket+1 < len(u.received) && u.received[u.lastPacket+1] {
		u.lastPacket++
	}

	return u.lastPacket == u.totalPackets-1
}

// LastPacket returns the index of the longest received contiguous prefix.
func (u *udpReassembly) LastPacket() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.lastPacket
}

// BadPackets returns the count of rejected duplicate/out-of-range packets.
func (u *udpReassembly) BadPackets() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.badPackets
}

// assembled concatenates the first chunk and every data packet into the
// formatted image blob. Only meaningful once receivePacket has returned true.
func (u *udpReassembly) assembled() ([]byte, int64) {
	u.mu.Lock()
	defer u.mu.Unlock()

	out := make([]byte, 0, len(u.firstChunk)+u.totalPackets*MaxImgPacketSize)
	out = append(out, u.firstChunk...)
	for _, p := range u.packets {
		out = append(out, p...)
	}
	return out, u.fileSize
}
