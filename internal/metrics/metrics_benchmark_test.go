package metrics

import (
	"io"
	"testing"
	"time"
)

func BenchmarkCollector_Record(b *testing.B) {
	c := NewCollector()
	e := Event{Timestamp: time.Now(), TotalDuration: time.Millisecond, IssueCount: 3, Cache: CacheMiss}
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		c.Record(e)
	}
}

func BenchmarkCollector_RecordParallel(b *testing.B) {
	c := NewCollector()
	e := Event{Timestamp: time.Now(), TotalDuration: time.Millisecond}
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			c.Record(e)
		}
	})
}

func BenchmarkCollector_Stats(b *testing.B) {
	c := NewCollector()
	for i := 0; i < 5000; i++ {
		c.Record(Event{Timestamp: time.Now(), TotalDuration: time.Duration(i) * time.Microsecond})
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = c.Stats()
	}
}

func BenchmarkRecorder_FileRun(b *testing.B) {
	r := NewRecorder(NewCollector(), SourceCLI)
	content := []byte("int main(void) {\n  return 0;\n}\n")
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		r.StartFile("main.c", content).Parsed().WithCache(CacheMiss).Complete(1, 0, 0)
	}
}

func BenchmarkExporter_WriteReport(b *testing.B) {
	c := NewCollector()
	for i := 0; i < 1000; i++ {
		c.Record(Event{Timestamp: time.Now(), Source: SourceCLI, TotalDuration: time.Millisecond})
	}
	e := NewExporter(c)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = e.WriteReport(io.Discard)
	}
}
