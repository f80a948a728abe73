// Provides platform-appropriate paths for the bake/cvd/served toolchain.
//
// Host-side runtime paths follow XDG conventions on Linux and
// platform-native conventions on macOS and Windows. Container-internal
// paths are fixed constants naming locations inside a container's own
// filesystem namespace.
package paths
