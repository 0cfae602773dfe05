package renderer

import "os"

var debugEnabled = os.Getenv("CHASER_DEBUG") == "1" || os.Getenv("CHASER_DEBUG") == "true"
