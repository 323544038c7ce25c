package pangraph

import "github.com/sirupsen/logrus"

// Log is the package-wide structured logger. Callers embedding pangraph
// in a larger program may replace it (e.g. to redirect output or set a
// JSON formatter) before calling into the graph.
var Log = logrus.New()

func init() {
	Log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
}
