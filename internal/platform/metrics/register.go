package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once       sync.Once
	collectors []prometheus.Collector
)

// register は各ファイルの init() から呼ばれ、コレクターを登録待ちに追加します。
func register(cs ...prometheus.Collector) {
	collectors = append(collectors, cs...)
}

// MustRegister は登録待ちのコレクターをデフォルトレジストリに一度だけ登録します。
func MustRegister() {
	once.Do(func() {
		if len(collectors) > 0 {
			prometheus.MustRegister(collectors...)
		}
	})
}
