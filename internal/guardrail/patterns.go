package guardrail

import "regexp"

// leakPatterns catch infrastructure details the taxonomy terms cannot express.
var leakPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)my (system\s+)?prompt\s+(is|says|tells|instructs)`),
	regexp.MustCompile(`(?i)my instructions?\s+(are|say|tell|include|require)`),
	regexp.MustCompile(`(?i)(api[_\s]?key|secret[_\s]?key|access[_\s]?token|bearer\s+token)\s*[:=]\s*\S+`),
	regexp.MustCompile(`(?i)(sk|pk)[-_](live|test|proj)[-_][a-zA-Z0-9]{16,}`),
	regexp.MustCompile(`AKIA[A-Z0-9]{16}`),
	regexp.MustCompile(`(?i)(postgres|postgresql|mysql|redis|mongodb)://\S+`),
	regexp.MustCompile(`\d{1,3}\.\d{1,3}\.\d{1,3}\.\d{1,3}:\d{2,5}`),
	regexp.MustCompile(`(我的|系統)(提示詞|指令)(是|如下)`),
}

var amountPromisePatterns = []*regexp.Regexp{
	// refund or compensation tied to an amount
	regexp.MustCompile(`(退|賠|補償|折抵|返還)[^。！？!?\n]{0,12}\d+\s*(元|塊|%|％)`),
	regexp.MustCompile(`(?i)(退|賠|補償|折抵|返還)[^。！？!?\n]{0,12}(nt\$|\$)\s*\d+`),
	regexp.MustCompile(`(?i)(refund|compensat\w*|credit)[^.!?\n]{0,20}(\$|nt\$|usd\s*|twd\s*)\d+`),
	// percentage or fold discounts
	regexp.MustCompile(`(?i)\d{1,2}\s*[%％]\s*(off|折扣|的?優惠)`),
	regexp.MustCompile(`打\s*[0-9一二三四五六七八九]{1,2}\s*折`),
	regexp.MustCompile(`[0-9一二三四五六七八九]\s*折(優惠|價)`),
	// "I'll give you X"
	regexp.MustCompile(`(我|我們)(會|可以|將|願意)?(直接)?(給|退|送|補)(你|您)[^。！？!?\n]{0,8}\d+\s*(元|塊|%|％|折)`),
	regexp.MustCompile(`(?i)i('ll| will| can)\s+(give|refund|credit)\s+you`),
	regexp.MustCompile(`(?i)we('ll| will| can)\s+(give|refund|credit)\s+you`),
}

var professionalAdvicePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(建議|可以|應該)(你|您)?(服用|吃|使用|塗抹)[^。！？\n]{0,10}(藥|錠|膠囊|mg|毫克)`),
	regexp.MustCompile(`\d+\s*(mg|毫克)`),
	regexp.MustCompile(`(診斷|確診|判斷)(為|是)`),
	regexp.MustCompile(`(建議|推薦)(你|您)?(買進|賣出|投資|購買)[^。！？\n]{0,6}(股票|基金|債券|幣)`),
	regexp.MustCompile(`法律(上)?(建議|意見)|(可以|應該)(提告|告他|告對方)`),
	regexp.MustCompile(`(?i)\byou should (take|buy|sell|invest|sue)\b`),
	regexp.MustCompile(`(?i)\b(diagnos(is|ed)|prescription|dosage|legal advice|investment advice)\b`),
}

var inappropriatePatterns = []*regexp.Regexp{
	regexp.MustCompile(`幹你|靠北|靠杯|白痴|白癡|智障|去死|他媽的|媽的|王八蛋|廢物|滾開`),
	regexp.MustCompile(`(?i)\b(fuck\w*|shit\w*|bitch\w*|idiot|stupid|moron|damn you)\b`),
}
