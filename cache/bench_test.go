package cache

import (
	"testing"
)

func BenchmarkFrameCacheGet(b *testing.B) {
	c := New(100 * frameBytes)
	for i := 0; i < 100; i++ {
		bmp := newBitmap(i)
		_ = c.Put(i, bmp)
		bmp.Release()
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if bmp := c.Get(50); bmp != nil {
			bmp.Release()
		}
	}
}

func BenchmarkFrameCachePutEvict(b *testing.B) {
	c := New(16 * frameBytes)
	c.SetWindow([]int{0, 1, 2, 3})
	bmps := make([]*Bitmap, 64)
	for i := range bmps {
		bmps[i] = newBitmap(i)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		f := i % len(bmps)
		_ = c.Put(f, bmps[f])
	}
}

func BenchmarkFrameCacheParallel(b *testing.B) {
	c := New(100 * frameBytes)
	for i := 0; i < 100; i++ {
		bmp := newBitmap(i)
		_ = c.Put(i, bmp)
		bmp.Release()
	}

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		i := 0
		for pb.Next() {
			if bmp := c.Get(i % 100); bmp != nil {
				bmp.Release()
			}
			i++
		}
	})
}
