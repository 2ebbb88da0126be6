package clhash

import "github.com/verus-community/verusminer/internal/haraka"

// reductionTable is the byte-shuffle table precompReduction64_v2 uses to
// fold the high half of a CLMUL product back into the polynomial modulo
// x^64+x^4+x^3+x+1.
var reductionTable = [16]byte{
	0, 27, 54, 45, 108, 119, 90, 65,
	216, 195, 238, 245, 180, 175, 130, 153,
}

// Hash runs the 32-round VerusHash v2.2 CLHash engine over buf, mutating
// key in place, and returns the 64-bit intermediate. Grounded on
// verus_clhash_v2.c's __verusclmulwithoutreduction64alignedrepeat_v2_2_full
// plus its verusclhashv2_2_full wrapper (the trailing lazyLengthHash +
// reduction).
func Hash(key *Key, buf *[64]byte) uint64 {
	var b [4]m128
	for i := 0; i < 4; i++ {
		b[i] = m128FromBytes(buf[16*i : 16*i+16])
	}

	pbufCopy := [4]m128{
		m128Xor(b[0], b[2]),
		m128Xor(b[1], b[3]),
		b[2],
		b[3],
	}
	// pbufCopy is addressed with a signed +-1 offset from a rotating base
	// the way the reference code walks adjacent __m128i slots; a Go slice
	// has no analogous out-of-bounds slot, so the buffer is treated as a
	// 4-element ring, which is the only well-defined reading of that
	// addressing scheme.
	pbufAt := func(base, delta int) m128 {
		idx := ((base+delta)%4 + 4) % 4
		return pbufCopy[idx]
	}

	acc := key.lane(KeyMask + 2)

	for i := 0; i < 32; i++ {
		selector := acc.Lo

		prandIdx := int((selector >> 5) & KeyMask)
		prandexIdx := int((selector >> 32) & KeyMask)
		base := int(selector & 3)

		key.pRand[i] = key.lane(prandIdx)
		key.pRandEx[i] = key.lane(prandexIdx)
		key.fixRand[i] = uint32(prandIdx)
		key.fixRandEx[i] = uint32(prandexIdx)

		delta1 := 1
		if selector&1 != 0 {
			delta1 = -1
		}

		switch selector & 0x1c {
		case 0x00:
			temp1 := key.lane(prandexIdx)
			temp2 := pbufAt(base, delta1)
			add1 := m128Xor(temp1, temp2)
			clprod1 := clmulSel(add1, add1, 0x10)
			acc = m128Xor(clprod1, acc)

			tempa1 := mulhrs(acc, temp1)
			tempa2 := m128Xor(tempa1, temp1)

			temp12 := key.lane(prandIdx)
			key.setLane(prandIdx, tempa2)

			temp22 := pbufAt(base, 0)
			add12 := m128Xor(temp12, temp22)
			clprod12 := clmulSel(add12, add12, 0x10)
			acc = m128Xor(clprod12, acc)

			tempb1 := mulhrs(acc, temp12)
			tempb2 := m128Xor(tempb1, temp12)
			key.setLane(prandexIdx, tempb2)

		case 0x04:
			temp1 := key.lane(prandIdx)
			temp2 := pbufAt(base, 0)
			add1 := m128Xor(temp1, temp2)
			clprod1 := clmulSel(add1, add1, 0x10)
			acc = m128Xor(clprod1, acc)
			clprod2 := clmulSel(temp2, temp2, 0x10)
			acc = m128Xor(clprod2, acc)

			tempa1 := mulhrs(acc, temp1)
			tempa2 := m128Xor(tempa1, temp1)

			temp12 := key.lane(prandexIdx)
			key.setLane(prandexIdx, tempa2)

			temp22 := pbufAt(base, delta1)
			add12 := m128Xor(temp12, temp22)
			acc = m128Xor(add12, acc)

			tempb1 := mulhrs(acc, temp12)
			key.setLane(prandIdx, m128Xor(tempb1, temp12))

		case 0x08:
			temp1 := key.lane(prandexIdx)
			temp2 := pbufAt(base, 0)
			add1 := m128Xor(temp1, temp2)
			acc = m128Xor(add1, acc)

			tempa1 := mulhrs(acc, temp1)
			tempa2 := m128Xor(tempa1, temp1)

			temp12 := key.lane(prandIdx)
			key.setLane(prandIdx, tempa2)

			temp22 := pbufAt(base, delta1)
			add12 := m128Xor(temp12, temp22)
			clprod12 := clmulSel(add12, add12, 0x10)
			acc = m128Xor(clprod12, acc)
			clprod22 := clmulSel(temp22, temp22, 0x10)
			acc = m128Xor(clprod22, acc)

			tempb1 := mulhrs(acc, temp12)
			tempb2 := m128Xor(tempb1, temp12)
			key.setLane(prandexIdx, tempb2)

		case 0x0c:
			temp1 := key.lane(prandIdx)
			temp2 := pbufAt(base, delta1)
			add1 := m128Xor(temp1, temp2)

			divisor := int32(uint32(selector))
			acc = m128Xor(add1, acc)

			dividend := int64(acc.Lo)
			modv := int32(dividend % int64(divisor))
			modulo := m128{Lo: uint64(uint32(modv))}
			acc = m128Xor(modulo, acc)

			tempa1 := mulhrs(acc, temp1)
			tempa2 := m128Xor(tempa1, temp1)

			if dividend&1 != 0 {
				temp12 := key.lane(prandexIdx)
				key.setLane(prandexIdx, tempa2)

				temp22 := pbufAt(base, 0)
				add12 := m128Xor(temp12, temp22)
				clprod12 := clmulSel(add12, add12, 0x10)
				acc = m128Xor(clprod12, acc)
				clprod22 := clmulSel(temp22, temp22, 0x10)
				acc = m128Xor(clprod22, acc)

				tempb1 := mulhrs(acc, temp12)
				tempb2 := m128Xor(tempb1, temp12)
				key.setLane(prandIdx, tempb2)
			} else {
				key.setLane(prandIdx, key.lane(prandexIdx))
				key.setLane(prandexIdx, tempa2)
				acc = m128Xor(pbufAt(base, 0), acc)
			}

		case 0x10:
			rcIdx := prandIdx
			temp1 := pbufAt(base, delta1)
			temp2 := pbufAt(base, 0)

			temp1, temp2 = aes2mix2(key, rcIdx, temp1, temp2)
			temp1, temp2 = aes2mix2(key, rcIdx+4, temp1, temp2)
			temp1, temp2 = aes2mix2(key, rcIdx+8, temp1, temp2)

			acc = m128Xor(temp2, m128Xor(temp1, acc))

			tempa1 := key.lane(prandIdx)
			tempa2 := mulhrs(acc, tempa1)

			oldPrandex := key.lane(prandexIdx)
			key.setLane(prandIdx, oldPrandex)
			key.setLane(prandexIdx, m128Xor(tempa1, tempa2))

		case 0x14:
			// The monkins loop: a variable-length chain alternating a
			// CLMUL fold and a keyed two-lane AES/MIX round, the round
			// count and buffer parity both taken from the top selector
			// bits. rcIdx advances by one lane every iteration regardless
			// of branch; aesRoundOffset only advances by 4 on AES/MIX
			// iterations, and AES2's four round-key lanes are read from
			// the already-advanced rcIdx plus aesRoundOffset, not from the
			// lane onekey was just loaded from.
			rounds := selector >> 61
			rcIdx := prandIdx
			aesRoundOffset := 0
			var onekey m128
			for r := rounds; ; {
				shifted := uint64(0x10000000) << r
				if selector&shifted != 0 {
					var src m128
					if r&1 != 0 {
						src = pbufAt(base, 0)
					} else {
						src = pbufAt(base, delta1)
					}
					rcLane := key.lane(rcIdx)
					rcIdx++
					add1 := m128Xor(rcLane, src)
					clprod1 := clmulSel(add1, add1, 0x10)
					acc = m128Xor(clprod1, acc)
				} else {
					onekey = key.lane(rcIdx)
					rcIdx++
					var src m128
					if r&1 != 0 {
						src = pbufAt(base, delta1)
					} else {
						src = pbufAt(base, 0)
					}
					onekey, src = aes2mix2(key, rcIdx+aesRoundOffset, onekey, src)
					aesRoundOffset += 4
					acc = m128Xor(onekey, acc)
					acc = m128Xor(src, acc)
				}
				if r == 0 {
					break
				}
				r--
			}

			tempa1 := key.lane(prandIdx)
			tempa2 := mulhrs(acc, tempa1)
			tempa3 := m128Xor(tempa1, tempa2)
			tempa4 := key.lane(prandexIdx)
			key.setLane(prandexIdx, tempa3)
			key.setLane(prandIdx, tempa4)

		case 0x18:
			rounds := selector >> 61
			rcIdx := prandIdx
			divisor := int32(uint32(selector))
			var onekey m128
			for r := rounds; ; {
				shifted := uint64(0x10000000) << r
				if selector&shifted != 0 {
					var src m128
					if r&1 != 0 {
						src = pbufAt(base, 0)
					} else {
						src = pbufAt(base, delta1)
					}
					rcLane := key.lane(rcIdx)
					rcIdx++
					onekey = m128Xor(rcLane, src)
					dividend := int64(onekey.Lo)
					modv := int32(dividend % int64(divisor))
					acc = m128Xor(m128{Lo: uint64(uint32(modv))}, acc)
				} else {
					var src m128
					if r&1 != 0 {
						src = pbufAt(base, delta1)
					} else {
						src = pbufAt(base, 0)
					}
					rcLane := key.lane(rcIdx)
					rcIdx++
					add1 := m128Xor(rcLane, src)
					onekey = clmulSel(add1, add1, 0x10)
					clprod2 := mulhrs(acc, onekey)
					acc = m128Xor(clprod2, acc)
				}
				if r == 0 {
					break
				}
				r--
			}

			tempa3 := key.lane(prandexIdx)
			key.setLane(prandexIdx, onekey)
			key.setLane(prandIdx, m128Xor(tempa3, acc))

		case 0x1c:
			temp1 := pbufAt(base, 0)
			temp2 := key.lane(prandexIdx)
			add1 := m128Xor(temp1, temp2)
			clprod1 := clmulSel(add1, add1, 0x10)
			acc = m128Xor(clprod1, acc)

			tempa1 := mulhrs(acc, temp2)
			tempa2 := m128Xor(tempa1, temp2)

			tempa3 := key.lane(prandIdx)
			key.setLane(prandIdx, tempa2)

			acc = m128Xor(tempa3, acc)
			temp4 := pbufAt(base, delta1)
			acc = m128Xor(temp4, acc)

			tempb1 := mulhrs(acc, tempa3)
			key.setLane(prandexIdx, m128Xor(tempb1, tempa3))
		}
	}

	lengthVec := m128{Lo: 64, Hi: 1024}
	lazy := clmulSel(lengthVec, lengthVec, 0x10)
	acc = m128Xor(acc, lazy)

	return precompReduction64(acc)
}

// aes2mix2 applies Haraka's AES2 macro (two AES rounds per lane, four round
// keys read starting at rcIdx from the key buffer) followed by MIX2.
func aes2mix2(key *Key, rcIdx int, s0, s1 m128) (m128, m128) {
	b0, b1 := m128Bytes(s0), m128Bytes(s1)
	k0, k1, k2, k3 := m128Bytes(key.lane(rcIdx)), m128Bytes(key.lane(rcIdx+1)), m128Bytes(key.lane(rcIdx+2)), m128Bytes(key.lane(rcIdx+3))
	haraka.AESRound(&b0, k0)
	haraka.AESRound(&b1, k1)
	haraka.AESRound(&b0, k2)
	haraka.AESRound(&b1, k3)
	m0, m1 := haraka.Mix2(b0, b1)
	return m128FromBytes(m0[:]), m128FromBytes(m1[:])
}

func precompReduction64(a m128) uint64 {
	const c = (1 << 4) + (1 << 3) + (1 << 1) + (1 << 0)
	q2lo, q2hi := clmul64(a.Hi, c)

	var idx [16]byte
	for i := 0; i < 8; i++ {
		idx[i] = byte(q2hi >> (8 * uint(i)))
	}
	q3 := pshufb(reductionTable, idx)

	var q3lo uint64
	for i := 0; i < 8; i++ {
		q3lo |= uint64(q3[i]) << (8 * uint(i))
	}

	q4lo := q2lo ^ a.Lo
	return q3lo ^ q4lo
}
