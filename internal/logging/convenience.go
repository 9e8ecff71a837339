package logging

// Convenience functions; one quartet per category so call sites stay short.
// All are no-ops before Initialize.

func Boot(format string, args ...interface{})      { Get(CategoryBoot).Infof(format, args...) }
func BootDebug(format string, args ...interface{}) { Get(CategoryBoot).Debugf(format, args...) }
func BootWarn(format string, args ...interface{})  { Get(CategoryBoot).Warnf(format, args...) }
func BootError(format string, args ...interface{}) { Get(CategoryBoot).Errorf(format, args...) }

func Kernel(format string, args ...interface{})      { Get(CategoryKernel).Infof(format, args...) }
func KernelDebug(format string, args ...interface{}) { Get(CategoryKernel).Debugf(format, args...) }
func KernelWarn(format string, args ...interface{})  { Get(CategoryKernel).Warnf(format, args...) }
func KernelError(format string, args ...interface{}) { Get(CategoryKernel).Errorf(format, args...) }

func Loop(format string, args ...interface{})      { Get(CategoryLoop).Infof(format, args...) }
func LoopDebug(format string, args ...interface{}) { Get(CategoryLoop).Debugf(format, args...) }
func LoopWarn(format string, args ...interface{})  { Get(CategoryLoop).Warnf(format, args...) }
func LoopError(format string, args ...interface{}) { Get(CategoryLoop).Errorf(format, args...) }

func Store(format string, args ...interface{})      { Get(CategoryStore).Infof(format, args...) }
func StoreDebug(format string, args ...interface{}) { Get(CategoryStore).Debugf(format, args...) }
func StoreWarn(format string, args ...interface{})  { Get(CategoryStore).Warnf(format, args...) }
func StoreError(format string, args ...interface{}) { Get(CategoryStore).Errorf(format, args...) }

func Tools(format string, args ...interface{})      { Get(CategoryTools).Infof(format, args...) }
func ToolsDebug(format string, args ...interface{}) { Get(CategoryTools).Debugf(format, args...) }
func ToolsWarn(format string, args ...interface{})  { Get(CategoryTools).Warnf(format, args...) }
func ToolsError(format string, args ...interface{}) { Get(CategoryTools).Errorf(format, args...) }

func Guard(format string, args ...interface{})      { Get(CategoryGuard).Infof(format, args...) }
func GuardDebug(format string, args ...interface{}) { Get(CategoryGuard).Debugf(format, args...) }
func GuardWarn(format string, args ...interface{})  { Get(CategoryGuard).Warnf(format, args...) }
func GuardError(format string, args ...interface{}) { Get(CategoryGuard).Errorf(format, args...) }

func Memory(format string, args ...interface{})      { Get(CategoryMemory).Infof(format, args...) }
func MemoryDebug(format string, args ...interface{}) { Get(CategoryMemory).Debugf(format, args...) }
func MemoryWarn(format string, args ...interface{})  { Get(CategoryMemory).Warnf(format, args...) }
func MemoryError(format string, args ...interface{}) { Get(CategoryMemory).Errorf(format, args...) }

func Context(format string, args ...interface{})      { Get(CategoryContext).Infof(format, args...) }
func ContextDebug(format string, args ...interface{}) { Get(CategoryContext).Debugf(format, args...) }
func ContextWarn(format string, args ...interface{})  { Get(CategoryContext).Warnf(format, args...) }

func Model(format string, args ...interface{})      { Get(CategoryModel).Infof(format, args...) }
func ModelDebug(format string, args ...interface{}) { Get(CategoryModel).Debugf(format, args...) }
func ModelWarn(format string, args ...interface{})  { Get(CategoryModel).Warnf(format, args...) }
func ModelError(format string, args ...interface{}) { Get(CategoryModel).Errorf(format, args...) }

func Chain(format string, args ...interface{})      { Get(CategoryChain).Infof(format, args...) }
func ChainDebug(format string, args ...interface{}) { Get(CategoryChain).Debugf(format, args...) }
func ChainWarn(format string, args ...interface{})  { Get(CategoryChain).Warnf(format, args...) }
func ChainError(format string, args ...interface{}) { Get(CategoryChain).Errorf(format, args...) }

func Sandbox(format string, args ...interface{})      { Get(CategorySandbox).Infof(format, args...) }
func SandboxDebug(format string, args ...interface{}) { Get(CategorySandbox).Debugf(format, args...) }
func SandboxError(format string, args ...interface{}) { Get(CategorySandbox).Errorf(format, args...) }

func Social(format string, args ...interface{})      { Get(CategorySocial).Infof(format, args...) }
func SocialDebug(format string, args ...interface{}) { Get(CategorySocial).Debugf(format, args...) }
func SocialError(format string, args ...interface{}) { Get(CategorySocial).Errorf(format, args...) }

func Heartbeat(format string, args ...interface{})      { Get(CategoryHeartbeat).Infof(format, args...) }
func HeartbeatDebug(format string, args ...interface{}) { Get(CategoryHeartbeat).Debugf(format, args...) }
func HeartbeatWarn(format string, args ...interface{})  { Get(CategoryHeartbeat).Warnf(format, args...) }
func HeartbeatError(format string, args ...interface{}) { Get(CategoryHeartbeat).Errorf(format, args...) }

func API(format string, args ...interface{})      { Get(CategoryAPI).Infof(format, args...) }
func APIDebug(format string, args ...interface{}) { Get(CategoryAPI).Debugf(format, args...) }
func APIWarn(format string, args ...interface{})  { Get(CategoryAPI).Warnf(format, args...) }
func APIError(format string, args ...interface{}) { Get(CategoryAPI).Errorf(format, args...) }

func Sanitizer(format string, args ...interface{})     { Get(CategorySanitizer).Infof(format, args...) }
func SanitizerWarn(format string, args ...interface{}) { Get(CategorySanitizer).Warnf(format, args...) }

func Survival(format string, args ...interface{})      { Get(CategorySurvival).Infof(format, args...) }
func SurvivalDebug(format string, args ...interface{}) { Get(CategorySurvival).Debugf(format, args...) }
func SurvivalWarn(format string, args ...interface{})  { Get(CategorySurvival).Warnf(format, args...) }
func SurvivalError(format string, args ...interface{}) { Get(CategorySurvival).Errorf(format, args...) }
