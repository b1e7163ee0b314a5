// Command derivcached bootstraps a derivcache Coordinator from flags
// and environment variables and keeps it alive until signaled.
//
// The coordination core deliberately has no notion of process
// lifecycle, HTTP routing, or configuration sources -- those are this
// binary's job. A production deployment would embed the Coordinator
// inside its own HTTP derivative-serving middleware; this binary proves
// the wiring and gives operators a way to smoke-test or clear a cache
// directory from the command line.
package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Global flags, populated by whichever subcommand's FlagSet parses them.
var (
	debug               bool
	printStats          bool
	cacheDir            string
	maxCacheBytes       int64
	maxQueuedBytes      int64
	waitIdenticalReqMs  int64
	waitIdenticalDiskMs int64
	syncOnQueueFull     bool
	failOnLockTimeout   bool
	compress            bool
	moveIntoPlace       bool
	dedupeType          string
	dedupeLockDir       string
	mirrorType          string
	mirrorBucket        string
	mirrorPrefix        string
	mirrorLZ4           bool
	mirrorErrorRate     float64
)

func main() {
	if len(os.Args) > 1 && !strings.HasPrefix(os.Args[1], "-") {
		switch subcommand := os.Args[1]; subcommand {
		case "clear":
			runClearCommand()
			return
		case "help", "-h", "--help":
			printHelp()
			return
		default:
			fmt.Fprintf(os.Stderr, "Unknown subcommand: %s\n\n", subcommand)
			printHelp()
			os.Exit(1)
		}
	}

	runServeCommand()
}

func runServeCommand() {
	serveFlags := flag.NewFlagSet("serve", flag.ExitOnError)
	bindCommonFlags(serveFlags)

	syncDefault := getEnvBool("WRITE_SYNC_ON_QUEUE_FULL", false)
	failDefault := getEnvBool("FAIL_ON_ENQUEUE_LOCK_TIMEOUT", false)
	queuedBytesDefault := getEnvInt("MAX_QUEUED_BYTES", 64<<20)
	waitReqDefault := getEnvInt("WAIT_FOR_IDENTICAL_REQUESTS_MS", 5_000)
	waitDiskDefault := getEnvInt("WAIT_FOR_IDENTICAL_DISK_WRITES_MS", 5_000)

	serveFlags.Int64Var(&maxQueuedBytes, "max-queued-bytes", queuedBytesDefault, "Memory bound on unflushed write buffers, <= 0 disables async queuing (env: MAX_QUEUED_BYTES)")
	serveFlags.Int64Var(&waitIdenticalReqMs, "wait-identical-requests-ms", waitReqDefault, "Queue-lock / evict-and-write-lock timeout in ms (env: WAIT_FOR_IDENTICAL_REQUESTS_MS)")
	serveFlags.Int64Var(&waitIdenticalDiskMs, "wait-identical-disk-writes-ms", waitDiskDefault, "File-write-lock / locked-file retry timeout in ms (env: WAIT_FOR_IDENTICAL_DISK_WRITES_MS)")
	serveFlags.BoolVar(&syncOnQueueFull, "write-sync-on-queue-full", syncDefault, "Flush inline instead of returning an uncached Miss when the write queue is full (env: WRITE_SYNC_ON_QUEUE_FULL)")
	serveFlags.BoolVar(&failOnLockTimeout, "fail-on-enqueue-lock-timeout", failDefault, "Fail the request instead of running the producer uncached when the queue lock times out (env: FAIL_ON_ENQUEUE_LOCK_TIMEOUT)")

	serveFlags.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [flags]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Bootstrap a derivcache coordinator and run until signaled.\n\n")
		fmt.Fprintf(os.Stderr, "Flags (can also be set via environment variables):\n")
		serveFlags.PrintDefaults()
	}

	serveFlags.Parse(os.Args[1:])
	runServe()
}

func runClearCommand() {
	clearFlags := flag.NewFlagSet("clear", flag.ExitOnError)
	bindCommonFlags(clearFlags)

	clearFlags.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s clear [flags]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Remove every entry from the on-disk cache and metadata store, and clear the mirror (if configured).\n\n")
		fmt.Fprintf(os.Stderr, "Flags (can also be set via environment variables):\n")
		clearFlags.PrintDefaults()
	}

	clearFlags.Parse(os.Args[2:])
	runClear()
}

func bindCommonFlags(fs *flag.FlagSet) {
	debugDefault := getEnvBool("DEBUG", false)
	printStatsDefault := getEnvBool("PRINT_STATS", true)
	cacheDirDefault := getEnv("CACHE_DIR", filepath.Join(os.TempDir(), "derivcache"))
	maxCacheDefault := getEnvInt("MAX_CACHE_BYTES", 0)
	compressDefault := getEnvBool("COMPRESS", true)
	moveIntoPlaceDefault := getEnvBool("MOVE_FILES_INTO_PLACE", true)
	dedupeDefault := getEnv("DEDUPE_TYPE", "memory")
	dedupeLockDirDefault := getEnv("DEDUPE_LOCK_DIR", "")
	mirrorDefault := getEnv("MIRROR_TYPE", "")
	mirrorBucketDefault := getEnv("MIRROR_BUCKET", "")
	mirrorPrefixDefault := getEnv("MIRROR_PREFIX", "")
	mirrorLZ4Default := getEnvBool("MIRROR_LZ4", true)
	mirrorErrorRateDefault := getEnvFloat("MIRROR_ERROR_RATE", 0.0)

	fs.BoolVar(&debug, "debug", debugDefault, "Enable debug logging (env: DEBUG)")
	fs.BoolVar(&printStats, "stats", printStatsDefault, "Print cache statistics on exit (env: PRINT_STATS)")
	fs.StringVar(&cacheDir, "cache-dir", cacheDirDefault, "Local cache directory (env: CACHE_DIR)")
	fs.Int64Var(&maxCacheBytes, "max-cache-bytes", maxCacheDefault, "Cache size budget, <= 0 disables eviction (env: MAX_CACHE_BYTES)")
	fs.BoolVar(&compress, "compress", compressDefault, "zstd-compress artifact bodies on disk (env: COMPRESS)")
	fs.BoolVar(&moveIntoPlace, "move-files-into-place", moveIntoPlaceDefault, "Stage writes in a temp file and rename into place; disable to write destinations directly (env: MOVE_FILES_INTO_PLACE)")
	fs.StringVar(&dedupeType, "dedupe", dedupeDefault, "File-write lock registry: memory (in-process), fslock (cross-process, for a shared cache dir) (env: DEDUPE_TYPE)")
	fs.StringVar(&dedupeLockDir, "dedupe-lock-dir", dedupeLockDirDefault, "Lock directory for fslock dedupe (env: DEDUPE_LOCK_DIR)")
	fs.StringVar(&mirrorType, "mirror", mirrorDefault, "Optional mirror target: s3, gcs, or empty to disable (env: MIRROR_TYPE)")
	fs.StringVar(&mirrorBucket, "mirror-bucket", mirrorBucketDefault, "Mirror bucket name (env: MIRROR_BUCKET)")
	fs.StringVar(&mirrorPrefix, "mirror-prefix", mirrorPrefixDefault, "Mirror key prefix (env: MIRROR_PREFIX)")
	fs.BoolVar(&mirrorLZ4, "mirror-lz4", mirrorLZ4Default, "lz4-compress mirror upload bodies in flight (env: MIRROR_LZ4)")
	fs.Float64Var(&mirrorErrorRate, "mirror-error-rate", mirrorErrorRateDefault, "Error injection rate (0.0-1.0) for the mirror target, for exercising best-effort handling (env: MIRROR_ERROR_RATE)")
}

func printHelp() {
	fmt.Fprintf(os.Stderr, "Usage: %s [command] [flags]\n\n", os.Args[0])
	fmt.Fprintf(os.Stderr, "Bootstrap and operate a derivcache coordinator.\n\n")
	fmt.Fprintf(os.Stderr, "Commands:\n")
	fmt.Fprintf(os.Stderr, "  (no command)  Build the coordinator and run until signaled (default)\n")
	fmt.Fprintf(os.Stderr, "  clear         Remove every entry from the cache and mirror\n")
	fmt.Fprintf(os.Stderr, "  help          Show this help message\n\n")
	fmt.Fprintf(os.Stderr, "Run '%s [command] -h' for more information about a command.\n", os.Args[0])
}

// getEnv gets an environment variable or returns a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool gets a boolean environment variable or returns a default value.
// Accepts: true, false, 1, 0, yes, no (case insensitive).
func getEnvBool(key string, defaultValue bool) bool {
	value := strings.ToLower(os.Getenv(key))
	if value == "" {
		return defaultValue
	}
	return value == "true" || value == "1" || value == "yes"
}

// getEnvFloat gets a float64 environment variable or returns a default value.
func getEnvFloat(key string, defaultValue float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var f float64
	if _, err := fmt.Sscanf(value, "%f", &f); err != nil {
		return defaultValue
	}
	return f
}

// getEnvInt gets an int64 environment variable or returns a default value.
func getEnvInt(key string, defaultValue int64) int64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var n int64
	if _, err := fmt.Sscanf(value, "%d", &n); err != nil {
		return defaultValue
	}
	return n
}
