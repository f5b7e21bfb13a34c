package logger

import (
	"go.uber.org/zap"
)

// Log 默认指向 Nop，进程入口调用 Init 后输出生产格式日志。
// 库代码与测试无需初始化即可安全使用
var Log = zap.NewNop().Sugar()

func Init() {
	logger, err := zap.NewProduction()
	if err != nil {
		panic("failed to initialize zap logger: " + err.Error())
	}
	Log = logger.Sugar()
}
