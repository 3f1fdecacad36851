package logging

import "github.com/sirupsen/logrus"

// BaseFields 构建 action + 配置路径等基础字段，便于不同入口复用。
func BaseFields(action, configPath string) logrus.Fields {
	return logrus.Fields{
		"action":     action,
		"configPath": configPath,
	}
}

// RunFields 标识一次生成运行，server 为目标服务器。
func RunFields(runID, server string) logrus.Fields {
	return logrus.Fields{
		"run_id": runID,
		"server": server,
	}
}

// StageFields 提供阶段日志字段。
func StageFields(stage, runID string) logrus.Fields {
	return logrus.Fields{
		"action": "stage",
		"stage":  stage,
		"run_id": runID,
	}
}

// ResourceFields 提供资源标识与本地路径字段。
func ResourceFields(resID, path string) logrus.Fields {
	return logrus.Fields{
		"res_id": resID,
		"path":   path,
	}
}
