// Package registry holds the process-wide socket registration table.
//
// On first use the registry reads every plugin source (embedded file
// systems, directories, archives) and groups the descriptors by the socket
// they provide. Each socket has at most one owner, which is told about every
// descriptor for that socket exactly once, no matter whether the owner was
// registered before or after discovery.
//
// Tests replace the production table with an overlay Set through PushHarness
// and PopHarness. Owners observe a remove for every descriptor of the old
// table followed by an add for every descriptor of the new one, so installing
// and removing an overlay leaves them where they started.
package registry
