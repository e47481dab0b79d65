// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package pool

import "github.com/luxfi/cpmm/fhe"

// Claim verification. Pure, stateless functions composed from engine
// operations. Every quotient check is rewritten as a cross-multiplication
// computed on the 128-bit type so the products cannot wrap, and every failure
// degrades to a zero amount rather than an error: validity is data, not
// control flow.

// widen casts a 64-bit value to 128 bits for overflow-safe products.
func widen(eng fhe.Engine, v fhe.Value) fhe.Value {
	return eng.Cast(v, fhe.TypeEuint128)
}

// checkProportional reports claimed * reserve <= amount * totalSupply,
// the division-free form of claimed <= amount * totalSupply / reserve.
func checkProportional(eng fhe.Engine, claimed, reserve, amount, totalSupply fhe.Value) fhe.Value {
	lhs := eng.Mul(widen(eng, claimed), widen(eng, reserve))
	rhs := eng.Mul(widen(eng, amount), widen(eng, totalSupply))
	return eng.Le(lhs, rhs)
}

// verifyMint validates a liquidity claim against both reserves. The claim
// must be proportional on both sides, adding either amount to its reserve
// must not wrap, and the claimed liquidity must be nonzero. All-or-nothing:
// on any failure all three outputs are zero, so a failing mint moves no
// tokens and mints nothing.
func verifyMint(eng fhe.Engine, amount0, amount1, claimedLiq, reserve0, reserve1, totalSupply fhe.Value) (fhe.Value, fhe.Value, fhe.Value) {
	prop0 := checkProportional(eng, claimedLiq, reserve0, amount0, totalSupply)
	prop1 := checkProportional(eng, claimedLiq, reserve1, amount1, totalSupply)

	// x + y < x detects 64-bit wraparound.
	noWrap0 := eng.Not(eng.Lt(eng.Add(reserve0, amount0), reserve0))
	noWrap1 := eng.Not(eng.Lt(eng.Add(reserve1, amount1), reserve1))

	zero := eng.Encrypt(0, fhe.TypeEuint64)
	nonZero := eng.Not(eng.Eq(claimedLiq, zero))

	valid := eng.And(eng.And(prop0, prop1), eng.And(eng.And(noWrap0, noWrap1), nonZero))

	return eng.Select(valid, amount0, zero),
		eng.Select(valid, amount1, zero),
		eng.Select(valid, claimedLiq, zero)
}

// verifyBurnAmount reports claimedAmount * totalSupply <= liquidity * reserve,
// the division-free form of claimedAmount <= liquidity * reserve / totalSupply.
// Applied independently per token; the burn succeeds only if both hold.
func verifyBurnAmount(eng fhe.Engine, claimedAmount, liquidity, reserve, totalSupply fhe.Value) fhe.Value {
	lhs := eng.Mul(widen(eng, claimedAmount), widen(eng, totalSupply))
	rhs := eng.Mul(widen(eng, liquidity), widen(eng, reserve))
	return eng.Le(lhs, rhs)
}

// verifySwap validates a swap claim against the constant-product invariant
// with a 0.3% fee, cross-multiplied:
//
//	((reserveIn+amountIn)*1000 - amountIn*3) * (reserveOut-claimedOut) * 1000
//	    >= reserveIn * reserveOut * 1_000_000
//
// Equality passes: a claim exactly at the fee boundary succeeds. The claim
// must also leave the output reserve strictly positive, and the input side
// must not wrap at 64 bits.
//
// The 128-bit products bound overflow only while reserveIn*reserveOut stays
// below 2^108 or so (reserves up to roughly 2^54 each, scale factor 10^6
// included). Beyond that the right-hand side wraps and an invalid claim
// could pass; pools at that magnitude need a wider intermediate type.
func verifySwap(eng fhe.Engine, amountIn, claimedOut, reserveIn, reserveOut fhe.Value) fhe.Value {
	outOK := eng.Lt(claimedOut, reserveOut)
	noWrap := eng.Not(eng.Lt(eng.Add(reserveIn, amountIn), reserveIn))

	rIn := widen(eng, reserveIn)
	rOut := widen(eng, reserveOut)
	aIn := widen(eng, amountIn)
	out := widen(eng, claimedOut)

	thousand := eng.Encrypt(1000, fhe.TypeEuint128)
	three := eng.Encrypt(3, fhe.TypeEuint128)
	million := eng.Encrypt(1_000_000, fhe.TypeEuint128)

	// Effective input after fee, scaled by 1000 to stay integral.
	inScaled := eng.Sub(eng.Mul(eng.Add(rIn, aIn), thousand), eng.Mul(aIn, three))
	lhs := eng.Mul(eng.Mul(inScaled, eng.Sub(rOut, out)), thousand)
	rhs := eng.Mul(eng.Mul(rIn, rOut), million)

	return eng.And(eng.And(outOK, noWrap), eng.Le(rhs, lhs))
}
