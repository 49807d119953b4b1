package phash

// lumaScale is the fixed-point precision of resized grey levels: a value of
// 16*g means grey level g.
const lumaScale = 16

// span is the integer overlap between one source pixel and one output cell.
type span struct {
	cell   int
	weight uint64
}

// spans lists, for every source index in [0, src), the output cells it
// overlaps when src samples are mapped onto dst cells. Lengths are measured in
// units of 1/(src*dst) so every overlap is an exact integer: a source sample
// is dst units wide and an output cell is src units wide.
func spans(src, dst int) [][]span {
	out := make([][]span, src)
	for s := 0; s < src; s++ {
		lo, hi := s*dst, (s+1)*dst
		for c := lo / src; c < dst && c*src < hi; c++ {
			ov := min(hi, (c+1)*src) - max(lo, c*src)
			if ov > 0 {
				out[s] = append(out[s], span{cell: c, weight: uint64(ov)})
			}
		}
	}
	return out
}

// boxResize area-averages a W x H grey plane down (or up) to w x h cells.
// The result is row-major and scaled by lumaScale. Only integer arithmetic is
// used, so the output is identical on every platform.
func boxResize(gray []uint8, W, H, w, h int) []int64 {
	xs := spans(W, w)
	ys := spans(H, h)

	rows := make([]uint64, H*w)
	for y := 0; y < H; y++ {
		src := gray[y*W : (y+1)*W]
		dst := rows[y*w : (y+1)*w]
		for x, g := range src {
			for _, sp := range xs[x] {
				dst[sp.cell] += uint64(g) * sp.weight
			}
		}
	}

	acc := make([]uint64, w*h)
	for y := 0; y < H; y++ {
		row := rows[y*w : (y+1)*w]
		for _, sp := range ys[y] {
			dst := acc[sp.cell*w : (sp.cell+1)*w]
			for x, v := range row {
				dst[x] += v * sp.weight
			}
		}
	}

	area := uint64(W) * uint64(H)
	out := make([]int64, w*h)
	for i, v := range acc {
		out[i] = int64((v*lumaScale + area/2) / area)
	}
	return out
}
